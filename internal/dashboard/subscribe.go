package dashboard

import (
	"fmt"

	"github.com/rileyhilliard/vector/internal/errors"
	"github.com/rileyhilliard/vector/internal/metric"
)

// Subscription asks for a fetched metric. Scale is the conversion factor
// for converted kinds and ignored otherwise.
type Subscription struct {
	Name  string
	Kind  metric.Kind
	Scale float64
}

// DerivedSubscription asks for a derived metric built from a named
// transform over its inputs.
type DerivedSubscription struct {
	Name   string
	Op     string
	Inputs []string
}

// Subscribe registers sub with the registry (or adds a subscriber to it).
func (m *Manager) Subscribe(sub Subscription) (*metric.Metric, error) {
	var convert metric.ConvertFunc
	if sub.Kind.IsConverted() {
		if sub.Scale == 0 {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Metric '%s' is %s but has no scale", sub.Name, sub.Kind),
				"Pass a non-zero scale for converted kinds")
		}
		convert = metric.Scale(sub.Scale)
	}
	mt, err := m.reg.GetOrCreate(sub.Name, sub.Kind, convert)
	if err != nil {
		return nil, err
	}
	m.log.Debug("[session] subscribed to %s (%s, %d subscriber(s))", sub.Name, sub.Kind, mt.Subscribers())
	m.stats.Registered(m.reg.Len(), m.reg.DerivedLen())
	return mt, nil
}

// Unsubscribe drops one subscriber from a fetched metric.
func (m *Manager) Unsubscribe(name string) error {
	if err := m.reg.Destroy(name); err != nil {
		return err
	}
	m.stats.Registered(m.reg.Len(), m.reg.DerivedLen())
	return nil
}

// SubscribeDerived registers a derived metric.
func (m *Manager) SubscribeDerived(sub DerivedSubscription) (*metric.DerivedMetric, error) {
	transform, err := metric.TransformFor(sub.Op, sub.Inputs)
	if err != nil {
		return nil, err
	}
	d, err := m.reg.GetOrCreateDerived(metric.DerivedSpec{
		Name:      sub.Name,
		Inputs:    sub.Inputs,
		Transform: transform,
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug("[session] subscribed to derived %s = %s(%v)", sub.Name, sub.Op, sub.Inputs)
	m.stats.Registered(m.reg.Len(), m.reg.DerivedLen())
	return d, nil
}

// UnsubscribeDerived drops one subscriber from a derived metric.
func (m *Manager) UnsubscribeDerived(name string) error {
	if err := m.reg.DestroyDerived(name); err != nil {
		return err
	}
	m.stats.Registered(m.reg.Len(), m.reg.DerivedLen())
	return nil
}

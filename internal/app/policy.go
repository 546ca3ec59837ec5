package app

import "fmt"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(entry ConnEntry) BackpressureAction
}

// DropPolicy loses the frame for that one recipient and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(ConnEntry) BackpressureAction { return DropFrame }

// KickPolicy disconnects recipients that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(ConnEntry) BackpressureAction { return KickMember }

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown slow consumer policy %q", name)
}

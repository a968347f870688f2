package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInstance is returned (wrapped) for every structural problem
	// with a problem instance: empty tower lists, id sequencing, field counts,
	// bounds and non-integer values.
	ErrInvalidInstance = errors.New("invalid instance")
	// ErrInconsistentState signals that the solver reached a state its
	// invariants rule out, e.g. an uncovered receiver with no candidate
	// transmitter. It is never recoverable.
	ErrInconsistentState = errors.New("solver state inconsistent")
)

// Transmitter is a transmitting tower with its initial power level.
type Transmitter struct {
	ID int `json:"id"`
	Position
	Power int `json:"power"`
}

// Receiver is a receiving tower.
type Receiver struct {
	ID int `json:"id"`
	Position
}

// Instance is a complete problem: the island and its towers, both lists in
// id order.
type Instance struct {
	Island       Island        `json:"island"`
	Transmitters []Transmitter `json:"transmitters"`
	Receivers    []Receiver    `json:"receivers"`
}

// Validate checks the invariants the solver relies on. Ids must be dense and
// start at 1 in slice order, every tower must be on the island and transmitter
// power must be non-negative.
func (in *Instance) Validate() error {
	if in == nil {
		return fmt.Errorf("%w: instance is nil", ErrInvalidInstance)
	}
	if in.Island.Width <= 0 || in.Island.Height <= 0 {
		return fmt.Errorf("%w: island dimensions must be positive, got %dx%d",
			ErrInvalidInstance, in.Island.Width, in.Island.Height)
	}
	if len(in.Transmitters) == 0 {
		return fmt.Errorf("%w: no transmitting towers", ErrInvalidInstance)
	}
	if len(in.Receivers) == 0 {
		return fmt.Errorf("%w: no receiving towers", ErrInvalidInstance)
	}

	for i, tx := range in.Transmitters {
		if tx.ID != i+1 {
			return fmt.Errorf("%w: transmitting tower id %d is out of sequence (want %d)",
				ErrInvalidInstance, tx.ID, i+1)
		}
		if !in.Island.Contains(tx.Position) {
			return fmt.Errorf("%w: transmitting tower %d has invalid coordinates (%d, %d)",
				ErrInvalidInstance, tx.ID, tx.X, tx.Y)
		}
		if tx.Power < 0 {
			return fmt.Errorf("%w: transmitting tower %d has negative power %d",
				ErrInvalidInstance, tx.ID, tx.Power)
		}
	}

	for i, rx := range in.Receivers {
		if rx.ID != i+1 {
			return fmt.Errorf("%w: receiving tower id %d is out of sequence (want %d)",
				ErrInvalidInstance, rx.ID, i+1)
		}
		if !in.Island.Contains(rx.Position) {
			return fmt.Errorf("%w: receiving tower %d has invalid coordinates (%d, %d)",
				ErrInvalidInstance, rx.ID, rx.X, rx.Y)
		}
	}
	return nil
}

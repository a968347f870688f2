package core

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// PowerIncrease is the new power of one transmitter whose power had to grow.
type PowerIncrease struct {
	TransmitterID int `json:"transmitter_id"`
	NewPower      int `json:"new_power"`
}

// Step records one applied greedy increase.
type Step struct {
	Round         int   `json:"round"`
	TransmitterID int   `json:"transmitter_id"`
	Increase      int   `json:"increase"`
	NewPower      int   `json:"new_power"`
	Covered       []int `json:"covered"`
}

// Solution is the outcome of a solve. PowerIncreases is ordered by ascending
// transmitter id; Steps is in the order the increases were applied.
type Solution struct {
	TotalReceivers             int             `json:"total_receivers"`
	ReceiversWithInitialSignal int             `json:"receivers_with_initial_signal"`
	PowerIncreases             []PowerIncrease `json:"power_increases"`
	Steps                      []Step          `json:"steps,omitempty"`
}

// Increases returns the power increases as a transmitter id -> new power map.
func (s *Solution) Increases() map[int]int {
	out := make(map[int]int, len(s.PowerIncreases))
	for _, inc := range s.PowerIncreases {
		out[inc.TransmitterID] = inc.NewPower
	}
	return out
}

// WriteText prints "initial/total" followed by one "id power" line per
// increased transmitter.
func (s *Solution) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d/%d\n", s.ReceiversWithInitialSignal, s.TotalReceivers)
	for _, inc := range s.PowerIncreases {
		fmt.Fprintf(bw, "%d %d\n", inc.TransmitterID, inc.NewPower)
	}
	return bw.Flush()
}

// WriteJSON writes the solution as indented JSON.
func (s *Solution) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

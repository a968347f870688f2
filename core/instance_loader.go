// core/instance_loader.go
package core

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadInstanceFile opens path and decodes it with LoadInstanceJSON when the
// extension is .json, and with LoadInstance otherwise.
func LoadInstanceFile(path string) (*Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadInstanceFile: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadInstanceJSON(f)
	}
	return LoadInstance(f)
}

// LoadInstance reads the line-oriented text format:
//
//	W H
//	id x y power   (transmitters, ids 1, 2, 3, ...)
//	id x y         (receivers, ids 1, 2, 3, ...)
//
// A line whose id does not continue the transmitter sequence is taken to be
// the first receiver. Blank lines are ignored. The returned instance has
// already passed Validate.
func LoadInstance(r io.Reader) (*Instance, error) {
	lines := &lineReader{sc: bufio.NewScanner(r)}

	dims, err := lines.next()
	if err != nil {
		return nil, err
	}
	if dims == nil || len(dims.fields) != 2 {
		return nil, fmt.Errorf("%w: invalid dimensions for island: must be 2 integers", ErrInvalidInstance)
	}
	inst := &Instance{Island: Island{Width: dims.fields[0], Height: dims.fields[1]}}
	if inst.Island.Width <= 0 || inst.Island.Height <= 0 {
		return nil, fmt.Errorf("%w: island dimensions must be positive, got %dx%d",
			ErrInvalidInstance, inst.Island.Width, inst.Island.Height)
	}

	// Transmitters
	tower, err := lines.next()
	if err != nil {
		return nil, err
	}
	if tower == nil {
		return nil, fmt.Errorf("%w: no transmitting towers", ErrInvalidInstance)
	}
	if tower.fields[0] != 1 {
		return nil, fmt.Errorf("%w: line %d: first transmitting tower must have id of 1", ErrInvalidInstance, tower.num)
	}
	lastID := 0
	for tower != nil && tower.fields[0] == lastID+1 {
		if len(tower.fields) != 4 {
			return nil, fmt.Errorf("%w: line %d: transmitting tower %d must have 4 parameters",
				ErrInvalidInstance, tower.num, tower.fields[0])
		}
		tx := Transmitter{
			ID:       tower.fields[0],
			Position: Position{X: tower.fields[1], Y: tower.fields[2]},
			Power:    tower.fields[3],
		}
		if !inst.Island.Contains(tx.Position) {
			return nil, fmt.Errorf("%w: line %d: transmitting tower %d has invalid coordinates",
				ErrInvalidInstance, tower.num, tx.ID)
		}
		inst.Transmitters = append(inst.Transmitters, tx)
		lastID++
		if tower, err = lines.next(); err != nil {
			return nil, err
		}
	}

	// Receivers
	if tower == nil {
		return nil, fmt.Errorf("%w: no receiving towers", ErrInvalidInstance)
	}
	if tower.fields[0] != 1 {
		return nil, fmt.Errorf("%w: line %d: first receiving tower %d must have id of 1",
			ErrInvalidInstance, tower.num, tower.fields[0])
	}
	lastID = 0
	for tower != nil {
		if tower.fields[0] != lastID+1 {
			return nil, fmt.Errorf("%w: line %d: receiving tower id %d is out of sequence",
				ErrInvalidInstance, tower.num, tower.fields[0])
		}
		if len(tower.fields) != 3 {
			return nil, fmt.Errorf("%w: line %d: receiving tower %d must have 3 parameters",
				ErrInvalidInstance, tower.num, tower.fields[0])
		}
		rx := Receiver{
			ID:       tower.fields[0],
			Position: Position{X: tower.fields[1], Y: tower.fields[2]},
		}
		if !inst.Island.Contains(rx.Position) {
			return nil, fmt.Errorf("%w: line %d: receiving tower %d has invalid coordinates",
				ErrInvalidInstance, tower.num, rx.ID)
		}
		inst.Receivers = append(inst.Receivers, rx)
		lastID++
		if tower, err = lines.next(); err != nil {
			return nil, err
		}
	}

	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

type parsedLine struct {
	num    int
	fields []int
}

type lineReader struct {
	sc  *bufio.Scanner
	num int
}

// next returns the next non-blank line parsed into integers, or nil at EOF.
func (lr *lineReader) next() (*parsedLine, error) {
	for lr.sc.Scan() {
		lr.num++
		raw := strings.Fields(lr.sc.Text())
		if len(raw) == 0 {
			continue
		}
		fields := make([]int, len(raw))
		for i, s := range raw {
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %q is not an integer", ErrInvalidInstance, lr.num, s)
			}
			fields[i] = v
		}
		return &parsedLine{num: lr.num, fields: fields}, nil
	}
	if err := lr.sc.Err(); err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	return nil, nil
}

// internal JSON shapes – keep them unexported so we’re free to evolve them.
type instanceJSON struct {
	Island       islandJSON        `json:"island"`
	Transmitters []transmitterJSON `json:"transmitters"`
	Receivers    []receiverJSON    `json:"receivers"`
}

type islandJSON struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type transmitterJSON struct {
	ID    int `json:"id"`
	X     int `json:"x"`
	Y     int `json:"y"`
	Power int `json:"power"`
}

type receiverJSON struct {
	ID int `json:"id"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

// LoadInstanceJSON decodes a JSON instance from r and validates it.
func LoadInstanceJSON(r io.Reader) (*Instance, error) {
	var payload instanceJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: LoadInstanceJSON: decode failed: %v", ErrInvalidInstance, err)
	}

	inst := &Instance{
		Island:       Island{Width: payload.Island.Width, Height: payload.Island.Height},
		Transmitters: make([]Transmitter, 0, len(payload.Transmitters)),
		Receivers:    make([]Receiver, 0, len(payload.Receivers)),
	}
	for _, t := range payload.Transmitters {
		inst.Transmitters = append(inst.Transmitters, Transmitter{
			ID:       t.ID,
			Position: Position{X: t.X, Y: t.Y},
			Power:    t.Power,
		})
	}
	for _, r := range payload.Receivers {
		inst.Receivers = append(inst.Receivers, Receiver{
			ID:       r.ID,
			Position: Position{X: r.X, Y: r.Y},
		})
	}

	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

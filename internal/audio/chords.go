package audio

import "math"

// Chord is a fixed set of tone frequencies in Hz.
type Chord struct {
	Name  string
	Freqs []float64
}

func midiHz(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func chord(name string, notes ...int) Chord {
	c := Chord{Name: name, Freqs: make([]float64, len(notes))}
	for i, n := range notes {
		c.Freqs[i] = midiHz(n)
	}
	return c
}

// Progression is the eight-chord ambient loop, voiced low and open.
var Progression = []Chord{
	chord("Cmaj7", 48, 55, 64, 71),
	chord("Am7", 45, 52, 60, 67),
	chord("Fmaj7", 41, 48, 57, 64),
	chord("G6", 43, 50, 59, 64),
	chord("Em7", 40, 47, 55, 62),
	chord("Am(add9)", 45, 55, 59, 60),
	chord("Dm9", 38, 48, 53, 64),
	chord("Gsus4", 43, 50, 55, 60),
}

// detune spreads n voices evenly across [-cents, +cents].
func detune(i, n int, cents float64) float64 {
	if n < 2 || cents == 0 {
		return 1
	}
	half := float64(n-1) / 2
	c := cents * (float64(i) - half) / half
	return math.Pow(2, c/1200)
}

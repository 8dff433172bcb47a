package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/Portunus/door/internal/door"
	"github.com/BrandonDHaskell/Portunus/door/internal/gpio"
	"github.com/BrandonDHaskell/Portunus/door/internal/wiegand"
)

// Hardware is the bench profile: which BCM pins things are wired to and how
// the stepper is driven.  Durations are written as Go duration strings
// ("800us", "3s").
type Hardware struct {
	Wiegand      WiegandHardware `yaml:"wiegand"`
	Driver       DriverHardware  `yaml:"driver"`
	Stepper      StepperHardware `yaml:"stepper"`
	PollInterval time.Duration   `yaml:"poll_interval"`
}

type WiegandHardware struct {
	D0         int `yaml:"d0"`
	D1         int `yaml:"d1"`
	QuietTicks int `yaml:"quiet_ticks"`
	Capacity   int `yaml:"capacity"`
}

type DriverHardware struct {
	EnableN   int   `yaml:"enable_n"`
	FaultN    int   `yaml:"fault_n"`
	Direction int   `yaml:"direction"`
	Step      int   `yaml:"step"`
	DoorOpenN int   `yaml:"door_open_n"`
	ModePins  []int `yaml:"mode_pins"`
}

type StepperHardware struct {
	Steps            int           `yaml:"steps"`
	StepDelay        time.Duration `yaml:"step_delay"`
	Direction        int           `yaml:"direction"`
	OpenTime         time.Duration `yaml:"open_time"`
	FaultLogInterval time.Duration `yaml:"fault_log_interval"`
}

func DefaultHardware() Hardware {
	w := door.DefaultWiring()
	c := door.DefaultConfig()

	modes := make([]int, len(w.ModePins))
	for i, p := range w.ModePins {
		modes[i] = int(p)
	}

	return Hardware{
		Wiegand: WiegandHardware{
			D0:         8,
			D1:         7,
			QuietTicks: wiegand.DefaultQuietTicks,
			Capacity:   wiegand.DefaultCapacity,
		},
		Driver: DriverHardware{
			EnableN:   int(w.EnableN),
			FaultN:    int(w.FaultN),
			Direction: int(w.Direction),
			Step:      int(w.Step),
			DoorOpenN: int(w.DoorOpenN),
			ModePins:  modes,
		},
		Stepper: StepperHardware{
			Steps:            c.Steps,
			StepDelay:        c.StepDelay,
			Direction:        c.Direction,
			OpenTime:         c.OpenTime,
			FaultLogInterval: c.FaultLogInterval,
		},
		PollInterval: c.PollInterval,
	}
}

// LoadHardware returns the defaults overlaid with the profile at path.  An
// empty path yields the defaults unchanged.
func LoadHardware(path string) (Hardware, error) {
	if path == "" {
		return DefaultHardware(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Hardware{}, fmt.Errorf("read hardware profile: %w", err)
	}
	h, err := ParseHardware(bytes.NewReader(b))
	if err != nil {
		return Hardware{}, fmt.Errorf("hardware profile %s: %w", path, err)
	}
	return h, nil
}

// ParseHardware decodes a YAML profile over the defaults.  Unknown keys are
// rejected so a typo cannot silently leave a pin at its default.
func ParseHardware(r io.Reader) (Hardware, error) {
	h := DefaultHardware()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && !errors.Is(err, io.EOF) {
		return Hardware{}, fmt.Errorf("decode: %w", err)
	}
	if err := h.Validate(); err != nil {
		return Hardware{}, err
	}
	return h, nil
}

func (h Hardware) Validate() error {
	if h.Wiegand.Capacity <= 0 {
		return fmt.Errorf("wiegand.capacity must be positive, got %d", h.Wiegand.Capacity)
	}
	if h.Wiegand.QuietTicks <= 0 {
		return fmt.Errorf("wiegand.quiet_ticks must be positive, got %d", h.Wiegand.QuietTicks)
	}
	if h.Wiegand.D0 == h.Wiegand.D1 {
		return fmt.Errorf("wiegand.d0 and wiegand.d1 share GPIO%d", h.Wiegand.D0)
	}
	if h.Stepper.Direction != 0 && h.Stepper.Direction != 1 {
		return fmt.Errorf("stepper.direction must be 0 or 1, got %d", h.Stepper.Direction)
	}
	if h.Stepper.Steps <= 0 {
		return fmt.Errorf("stepper.steps must be positive, got %d", h.Stepper.Steps)
	}
	if h.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", h.PollInterval)
	}

	used := make(map[int]string)
	claim := func(pin int, name string) error {
		if pin < 0 {
			return fmt.Errorf("%s: negative pin %d", name, pin)
		}
		if prev, ok := used[pin]; ok {
			return fmt.Errorf("%s and %s share GPIO%d", prev, name, pin)
		}
		used[pin] = name
		return nil
	}
	pins := []struct {
		pin  int
		name string
	}{
		{h.Wiegand.D0, "wiegand.d0"},
		{h.Wiegand.D1, "wiegand.d1"},
		{h.Driver.EnableN, "driver.enable_n"},
		{h.Driver.FaultN, "driver.fault_n"},
		{h.Driver.Direction, "driver.direction"},
		{h.Driver.Step, "driver.step"},
		{h.Driver.DoorOpenN, "driver.door_open_n"},
	}
	for i, p := range h.Driver.ModePins {
		pins = append(pins, struct {
			pin  int
			name string
		}{p, fmt.Sprintf("driver.mode_pins[%d]", i)})
	}
	for _, p := range pins {
		if err := claim(p.pin, p.name); err != nil {
			return err
		}
	}
	return nil
}

func (h Hardware) Wiring() door.Wiring {
	modes := make([]gpio.Pin, len(h.Driver.ModePins))
	for i, p := range h.Driver.ModePins {
		modes[i] = gpio.Pin(p)
	}
	return door.Wiring{
		EnableN:   gpio.Pin(h.Driver.EnableN),
		FaultN:    gpio.Pin(h.Driver.FaultN),
		Direction: gpio.Pin(h.Driver.Direction),
		Step:      gpio.Pin(h.Driver.Step),
		DoorOpenN: gpio.Pin(h.Driver.DoorOpenN),
		ModePins:  modes,
	}
}

func (h Hardware) ActuatorConfig() door.Config {
	return door.Config{
		Steps:            h.Stepper.Steps,
		StepDelay:        h.Stepper.StepDelay,
		Direction:        h.Stepper.Direction,
		OpenTime:         h.Stepper.OpenTime,
		PollInterval:     h.PollInterval,
		FaultLogInterval: h.Stepper.FaultLogInterval,
	}
}

func (h Hardware) DataPins() (d0, d1 gpio.Pin) {
	return gpio.Pin(h.Wiegand.D0), gpio.Pin(h.Wiegand.D1)
}

package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/floodrescue/core/intake"
	"github.com/kilianp07/floodrescue/core/model"
)

type RescuerDef struct {
	ID        string  `yaml:"id"`
	Phone     string  `yaml:"phone"`
	Status    string  `yaml:"status"`
	Lat       float64 `yaml:"lat"`
	Lng       float64 `yaml:"lng"`
	Vehicle   string  `yaml:"vehicle"`
	Capacity  int     `yaml:"capacity"`
	Rating    float64 `yaml:"rating"`
	Missions  int     `yaml:"missions"`
	FailsSend bool    `yaml:"fails_send,omitempty"`
}

func (r RescuerDef) ToModel() model.Rescuer {
	status := model.RescuerStatus(r.Status)
	if r.Status == "" {
		status = model.RescuerOnline
	}
	capacity := r.Capacity
	if capacity == 0 {
		capacity = 1
	}
	return model.Rescuer{
		ID:                r.ID,
		Phone:             r.Phone,
		Status:            status,
		Location:          model.RescuerLocation{Lat: r.Lat, Lng: r.Lng},
		VehicleType:       model.VehicleType(r.Vehicle),
		VehicleCapacity:   capacity,
		Rating:            r.Rating,
		CompletedMissions: r.Missions,
	}
}

// TicketDef is one intake request. Ref names the resulting ticket so accepts
// and expectations can refer to it.
type TicketDef struct {
	Ref            string `yaml:"ref"`
	intake.Request `yaml:",inline"`
}

type AcceptDef struct {
	Ticket  string `yaml:"ticket"`
	Rescuer string `yaml:"rescuer"`
}

type TicketExpect struct {
	Action     string `yaml:"action,omitempty"`
	Notified   *int   `yaml:"notified,omitempty"`
	Status     string `yaml:"status,omitempty"`
	AssignedTo string `yaml:"assigned_to,omitempty"`
	// DuplicateOf names the ref of the ticket this request matched.
	DuplicateOf string `yaml:"duplicate_of,omitempty"`
}

type Expected struct {
	Created  int                     `yaml:"created"`
	Accepted int                     `yaml:"accepted"`
	Rejected int                     `yaml:"rejected"`
	Tickets  map[string]TicketExpect `yaml:"tickets,omitempty"`
	Rescuers map[string]string       `yaml:"rescuers,omitempty"`
}

type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Rescuers    []RescuerDef `yaml:"rescuers"`
	Tickets     []TicketDef  `yaml:"tickets"`
	Accepts     []AcceptDef  `yaml:"accepts"`
	Expected    Expected     `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	refs := make(map[string]bool, len(sc.Tickets))
	for i, t := range sc.Tickets {
		if t.Ref == "" {
			return fmt.Errorf("ticket %d: ref is required", i)
		}
		if refs[t.Ref] {
			return fmt.Errorf("duplicate ticket ref %q", t.Ref)
		}
		refs[t.Ref] = true
	}
	for _, a := range sc.Accepts {
		if !refs[a.Ticket] {
			return fmt.Errorf("accept refers to unknown ticket %q", a.Ticket)
		}
	}
	return nil
}

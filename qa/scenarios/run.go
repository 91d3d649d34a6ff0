package scenarios

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/floodrescue/core/dedup"
	"github.com/kilianp07/floodrescue/core/dispatch"
	"github.com/kilianp07/floodrescue/core/intake"
	"github.com/kilianp07/floodrescue/core/logger"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
	"github.com/kilianp07/floodrescue/infra/metrics"
)

var errUnreachable = errors.New("rescuer unreachable")

// TicketReport is the observed outcome for one ticket ref.
type TicketReport struct {
	ID         string
	Action     dedup.Action
	Notified   int
	Status     string
	AssignedTo string
}

// Report summarizes a scenario run.
type Report struct {
	Created  int
	Accepted int
	Rejected int
	Tickets  map[string]TicketReport
	Rescuers map[string]string
	// Registry holds the metrics recorded during the run.
	Registry *prometheus.Registry
}

// Run plays sc against an in-memory store: rescuers are registered, tickets
// go through intake in order, then accepts are applied in order.
func Run(ctx context.Context, sc *Scenario, log logger.Logger) (*Report, error) {
	log = logger.OrNop(log)
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		return nil, fmt.Errorf("prom sink: %w", err)
	}

	s := store.NewMemoryStore()
	defer s.Close()
	ch := notify.NewRecordingChannel()
	for _, rd := range sc.Rescuers {
		r := rd.ToModel()
		if err := s.CreateRescuer(ctx, &r); err != nil {
			return nil, fmt.Errorf("rescuer %s: %w", rd.ID, err)
		}
		if rd.FailsSend {
			ch.FailFor(rd.ID, errUnreachable)
		}
	}

	mgr, err := dispatch.NewDispatchManager(s, ch, dispatch.Config{}, log)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()
	mgr.SetMetricsSink(sink)
	in := intake.NewService(s, dedup.NewChecker(s, dedup.Config{}), mgr, log)
	in.SetMetricsSink(sink)

	rep := &Report{
		Tickets:  make(map[string]TicketReport, len(sc.Tickets)),
		Rescuers: make(map[string]string, len(sc.Rescuers)),
		Registry: reg,
	}
	for _, td := range sc.Tickets {
		out, err := in.Submit(ctx, td.Request)
		if err != nil {
			return nil, fmt.Errorf("ticket %s: %w", td.Ref, err)
		}
		tr := TicketReport{Action: out.Dedup.Action}
		switch {
		case out.Ticket != nil:
			tr.ID = out.Ticket.ID
			rep.Created++
		default:
			tr.ID = out.Dedup.ExistingTicketID
		}
		if out.Dispatch != nil {
			tr.Notified = out.Dispatch.NotifiedCount
		}
		rep.Tickets[td.Ref] = tr
		log.Debugf("ticket %s -> %s (%s)", td.Ref, tr.ID, tr.Action)
	}

	for _, a := range sc.Accepts {
		res, err := mgr.Accept(ctx, rep.Tickets[a.Ticket].ID, a.Rescuer)
		if err != nil {
			return nil, fmt.Errorf("accept %s by %s: %w", a.Ticket, a.Rescuer, err)
		}
		if res.Success {
			rep.Accepted++
		} else {
			rep.Rejected++
		}
	}

	for ref, tr := range rep.Tickets {
		if tr.ID == "" {
			continue
		}
		t, err := s.GetTicket(ctx, tr.ID)
		if err != nil {
			return nil, fmt.Errorf("ticket %s: %w", ref, err)
		}
		tr.Status = string(t.Status)
		tr.AssignedTo = t.AssignedRescuerID
		rep.Tickets[ref] = tr
	}
	for _, rd := range sc.Rescuers {
		r, err := s.GetRescuer(ctx, rd.ID)
		if err != nil {
			return nil, fmt.Errorf("rescuer %s: %w", rd.ID, err)
		}
		rep.Rescuers[rd.ID] = string(r.Status)
	}
	return rep, nil
}

// Check compares the report with exp and returns one line per mismatch.
func (r *Report) Check(exp Expected) []string {
	var out []string
	mismatch := func(format string, args ...any) { out = append(out, fmt.Sprintf(format, args...)) }

	if r.Created != exp.Created {
		mismatch("created: want %d, got %d", exp.Created, r.Created)
	}
	if r.Accepted != exp.Accepted {
		mismatch("accepted: want %d, got %d", exp.Accepted, r.Accepted)
	}
	if r.Rejected != exp.Rejected {
		mismatch("rejected: want %d, got %d", exp.Rejected, r.Rejected)
	}
	for _, ref := range sortedKeys(exp.Tickets) {
		want := exp.Tickets[ref]
		got, ok := r.Tickets[ref]
		if !ok {
			mismatch("ticket %s: not submitted", ref)
			continue
		}
		if want.Action != "" && string(got.Action) != want.Action {
			mismatch("ticket %s action: want %s, got %s", ref, want.Action, got.Action)
		}
		if want.Notified != nil && got.Notified != *want.Notified {
			mismatch("ticket %s notified: want %d, got %d", ref, *want.Notified, got.Notified)
		}
		if want.Status != "" && got.Status != want.Status {
			mismatch("ticket %s status: want %s, got %s", ref, want.Status, got.Status)
		}
		if want.AssignedTo != "" && got.AssignedTo != want.AssignedTo {
			mismatch("ticket %s assigned_to: want %s, got %s", ref, want.AssignedTo, got.AssignedTo)
		}
		if want.DuplicateOf != "" && got.ID != r.Tickets[want.DuplicateOf].ID {
			mismatch("ticket %s: want duplicate of %s", ref, want.DuplicateOf)
		}
	}
	for _, id := range sortedKeys(exp.Rescuers) {
		if got := r.Rescuers[id]; got != exp.Rescuers[id] {
			mismatch("rescuer %s status: want %s, got %s", id, exp.Rescuers[id], got)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

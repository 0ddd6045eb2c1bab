package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ehr/opdflow/internal/flowengine"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Report is what a visit command prints: the engine view after the command
// ran, plus the routes it pushed and any warnings.
type Report struct {
	View     flowengine.View `json:"view" yaml:"view"`
	Routes   []string        `json:"routes,omitempty" yaml:"routes,omitempty"`
	Warnings []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type formatter func(w io.Writer, r Report, mode renderMode) error

type renderMode int

const (
	renderList renderMode = iota
	renderFlow
)

func formatterFor(output string) (formatter, error) {
	switch strings.ToLower(output) {
	case "", OutputText:
		return writeText, nil
	case OutputJSON:
		return writeJSON, nil
	case OutputYAML:
		return writeYAML, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want text, json or yaml)", output)
}

func writeJSON(w io.Writer, r Report, _ renderMode) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeYAML(w io.Writer, r Report, _ renderMode) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func writeText(w io.Writer, r Report, mode renderMode) error {
	v := r.View
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if v.Offline {
		fmt.Fprintln(w, "offline: actions are disabled")
	}
	switch v.Panel {
	case flowengine.PanelRedirect:
		fmt.Fprintf(w, "no access to visits; redirected to %s\n", lastRoute(r.Routes))
		return nil
	case flowengine.PanelAccessDenied:
		fmt.Fprintln(w, "access denied")
		return nil
	case flowengine.PanelEntitlementBlocked:
		fmt.Fprintln(w, "the outpatient module is not enabled for this tenant")
		return nil
	case flowengine.PanelLoading:
		fmt.Fprintln(w, "permissions unresolved")
		return nil
	}

	if mode == renderList {
		writeList(w, v)
	} else {
		writeFlow(w, v)
	}
	if v.FormError != nil {
		fmt.Fprintf(w, "error: %s\n", formErrorText(v.FormError))
	}
	if len(r.Routes) > 0 {
		fmt.Fprintf(w, "route: %s\n", lastRoute(r.Routes))
	}
	return nil
}

func writeList(w io.Writer, v flowengine.View) {
	if v.ListError != nil {
		fmt.Fprintf(w, "could not load visits: %s (%s)\n", v.ListError.Message, v.ListError.Code)
		return
	}
	if len(v.List) == 0 {
		fmt.Fprintln(w, "no visits")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tPATIENT\tPROVIDER\tARRIVAL\tUPDATED")
	for _, e := range v.List {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Stage, orDash(patientLabel(e.PatientName, e.PatientID)), orDash(e.ProviderID), orDash(e.ArrivalMode), formatTime(e.UpdatedAt))
	}
	tw.Flush()
	p := v.Pagination
	if p.Total > 0 {
		fmt.Fprintf(w, "showing %d-%d of %d\n", p.Offset+1, p.Offset+len(v.List), p.Total)
	}
}

func writeFlow(w io.Writer, v flowengine.View) {
	if v.FlowError != nil {
		fmt.Fprintf(w, "could not load visit: %s (%s)\n", v.FlowError.Message, v.FlowError.Code)
		return
	}
	f := v.Flow
	if f == nil {
		fmt.Fprintln(w, "no visit selected")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Visit:\t%s\n", f.ID)
	fmt.Fprintf(tw, "Stage:\t%s\n", f.Stage)
	fmt.Fprintf(tw, "Patient:\t%s\n", orDash(patientLabel(f.PatientName, f.PatientID)))
	fmt.Fprintf(tw, "Provider:\t%s\n", orDash(f.ProviderID))
	if f.FacilityID != "" {
		fmt.Fprintf(tw, "Facility:\t%s\n", f.FacilityID)
	}
	fmt.Fprintf(tw, "Arrival:\t%s\n", orDash(f.ArrivalMode))
	fmt.Fprintf(tw, "Version:\t%d\n", f.Version)
	switch {
	case v.Terminal:
		fmt.Fprintf(tw, "Next:\tnone (visit closed)\n")
	case v.Action != flowmodel.ActionNone:
		next := string(v.Action)
		if !v.CanSubmit {
			next += " (not permitted)"
		}
		fmt.Fprintf(tw, "Next:\t%s\n", next)
	}
	tw.Flush()

	writeRecords(w, "Care plans", f.CarePlans)
	writeRecords(w, "Alerts", f.ClinicalAlerts)
	writeRecords(w, "Referrals", f.Referrals)
	writeRecords(w, "Follow-ups", f.FollowUps)
	if len(f.Timeline) > 0 {
		fmt.Fprintln(w, "Timeline:")
		for _, ev := range f.Timeline {
			label := ev.Event
			if ev.Label != "" {
				label = ev.Label
			}
			fmt.Fprintf(w, "  %s  %s\n", formatTime(ev.At), label)
		}
	}
}

func writeRecords(w io.Writer, title string, records []flowmodel.SubRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, r := range records {
		fmt.Fprintf(w, "  [%s] %s %s\n", r.Status, r.ID, r.Summary)
	}
}

func formErrorText(fe *flowengine.FormError) string {
	msg := fe.Message
	if fe.Field != "" {
		msg = fe.Field + ": " + msg
	}
	if fe.Code != "" {
		msg += " (" + fe.Code + ")"
	}
	return msg
}

func patientLabel(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func lastRoute(routes []string) string {
	if len(routes) == 0 {
		return "/"
	}
	return routes[len(routes)-1]
}

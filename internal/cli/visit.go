// Package cli is the command-line shell over the visit-flow engine. Each
// command opens an engine against the server, applies one user intent and
// prints the resulting view.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/opdflow/internal/flowengine"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

// ErrNotApplied is returned when a command ran but the server state did
// not change. The printed report carries the reason.
var ErrNotApplied = errors.New("action not applied")

// NewVisitCommand returns the "visit" command tree.
func NewVisitCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:          "visit",
		Short:        "Work the outpatient visit queue",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "client config file (YAML)")
	pf.StringVar(&opts.apiURL, "api-url", "", "server base URL (overrides OPDFLOW_API_URL)")
	pf.StringVar(&opts.token, "token", "", "bearer token (overrides OPDFLOW_TOKEN)")
	pf.StringVar(&opts.tenant, "tenant", "", "tenant id (overrides OPDFLOW_TENANT)")
	pf.StringVar(&opts.facility, "facility", "", "facility id (overrides OPDFLOW_FACILITY)")
	pf.BoolVar(&opts.offline, "offline", false, "treat the connection as offline; reads only")
	pf.StringVarP(&opts.output, "output", "o", OutputText, "output format: text, json or yaml")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(listCmd(opts))
	cmd.AddCommand(showCmd(opts))
	cmd.AddCommand(openCmd(opts))
	cmd.AddCommand(startCmd(opts))
	cmd.AddCommand(payCmd(opts))
	cmd.AddCommand(vitalsCmd(opts))
	cmd.AddCommand(assignCmd(opts))
	cmd.AddCommand(reviewCmd(opts))
	cmd.AddCommand(disposeCmd(opts))
	return cmd
}

func listCmd(opts *globalOptions) *cobra.Command {
	var params flowmodel.ListParams
	var stage string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage != "" {
				params.Stage = flowmodel.Stage(strings.ToUpper(stage))
			}
			s, err := opts.open(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := s.engine.Open(cmd.Context(), "", params); err != nil {
				return err
			}
			v := s.engine.View()
			if err := s.print(opts, Report{View: v, Routes: s.shell.Paths()}, renderList); err != nil {
				return err
			}
			if v.ListError != nil {
				return fmt.Errorf("list visits: %s", v.ListError.Code)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&stage, "stage", "", "only visits at this stage")
	f.StringVar(&params.PatientID, "patient", "", "only visits for this patient")
	f.StringVar(&params.ProviderID, "provider", "", "only visits assigned to this provider")
	f.StringVar(&params.AppointmentID, "appointment", "", "only visits linked to this appointment")
	f.StringVarP(&params.Query, "query", "q", "", "free-text search")
	f.IntVar(&params.Limit, "limit", 0, "page size")
	f.IntVar(&params.Offset, "offset", 0, "page offset")
	return cmd
}

func showCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show VISIT_ID",
		Short: "Show one visit and its next action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := s.engine.Open(cmd.Context(), args[0], flowmodel.ListParams{}); err != nil {
				return err
			}
			return s.printFlow(opts)
		},
	}
}

func openCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open PATH",
		Short: "Open a route such as /opd/visits/{id} or /opd/visits?patientId=p1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := s.engine.OpenPath(cmd.Context(), args[0]); err != nil {
				return err
			}
			if s.engine.View().SelectedID != "" {
				return s.printFlow(opts)
			}
			return s.print(opts, Report{View: s.engine.View(), Routes: s.shell.Paths()}, renderList)
		},
	}
}

func startCmd(opts *globalOptions) *cobra.Command {
	var payNow bool
	fields := map[string]*string{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new visit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := s.engine.Open(ctx, "", flowmodel.ListParams{}); err != nil {
				return err
			}
			for _, m := range startFlags {
				if !cmd.Flags().Changed(m.flag) {
					continue
				}
				value := *fields[m.flag]
				if m.upper {
					value = strings.ToUpper(value)
				}
				if err := s.engine.SetField(flowmodel.ActionStartVisit, m.field, value); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("pay-now") {
				if err := s.engine.SetField(flowmodel.ActionStartVisit, "payNow", fmt.Sprint(payNow)); err != nil {
					return err
				}
			}
			return s.finish(opts, s.engine.Start(ctx), nil)
		},
	}
	f := cmd.Flags()
	for _, m := range startFlags {
		fields[m.flag] = f.String(m.flag, m.def, m.usage)
	}
	f.BoolVar(&payNow, "pay-now", false, "collect the consultation payment at registration")
	return cmd
}

type fieldFlag struct {
	flag  string
	field string
	def   string
	usage string
	upper bool
}

var startFlags = []fieldFlag{
	{flag: "arrival", field: "arrivalMode", def: flowmodel.ArrivalWalkIn, usage: "WALK_IN, ONLINE_APPOINTMENT or EMERGENCY", upper: true},
	{flag: "patient", field: "patientId", usage: "existing patient id"},
	{flag: "appointment", field: "appointmentId", usage: "appointment id (online appointments)"},
	{flag: "first-name", field: "firstName", usage: "new patient first name"},
	{flag: "last-name", field: "lastName", usage: "new patient last name"},
	{flag: "provider", field: "providerId", usage: "preferred provider id"},
	{flag: "fee", field: "consultationFee", usage: "consultation fee"},
	{flag: "currency", field: "currency", usage: "fee currency", upper: true},
	{flag: "payment-method", field: "paymentMethod", usage: "payment method when paying now", upper: true},
	{flag: "payment-amount", field: "paymentAmount", usage: "amount paid now"},
	{flag: "payment-ref", field: "paymentReference", usage: "payment transaction reference"},
	{flag: "severity", field: "emergencySeverity", usage: "emergency severity", upper: true},
	{flag: "triage-level", field: "emergencyTriageLevel", usage: "emergency triage level", upper: true},
	{flag: "emergency-notes", field: "emergencyNotes", usage: "emergency notes"},
}

func payCmd(opts *globalOptions) *cobra.Command {
	flags := []fieldFlag{
		{flag: "method", field: "method", usage: "payment method (CASH, CARD, ...)", upper: true},
		{flag: "amount", field: "amount", usage: "amount paid"},
		{flag: "currency", field: "currency", usage: "currency", upper: true},
		{flag: "ref", field: "transactionRef", usage: "transaction reference"},
		{flag: "notes", field: "notes", usage: "notes"},
	}
	return fieldCommand(opts, "pay VISIT_ID", "Record the consultation payment", flowmodel.ActionPayConsultation, flags)
}

func assignCmd(opts *globalOptions) *cobra.Command {
	flags := []fieldFlag{
		{flag: "provider", field: "providerId", usage: "doctor to assign"},
	}
	return fieldCommand(opts, "assign VISIT_ID", "Assign a doctor", flowmodel.ActionAssignDoctor, flags)
}

// fieldCommand builds a transition command whose draft is flat fields.
func fieldCommand(opts *globalOptions, use, short string, kind flowmodel.ActionKind, flags []fieldFlag) *cobra.Command {
	values := map[string]*string{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, opts, args[0], kind, func(eng *flowengine.Engine) error {
				for _, m := range flags {
					if !cmd.Flags().Changed(m.flag) {
						continue
					}
					value := *values[m.flag]
					if m.upper {
						value = strings.ToUpper(value)
					}
					if err := eng.SetField(kind, m.field, value); err != nil {
						return err
					}
				}
				return nil
			}, nil)
		},
	}
	for _, m := range flags {
		values[m.flag] = cmd.Flags().String(m.flag, m.def, m.usage)
	}
	return cmd
}

func vitalsCmd(opts *globalOptions) *cobra.Command {
	var vitals []string
	var bp, triageLevel, triageNotes string
	cmd := &cobra.Command{
		Use:   "vitals VISIT_ID",
		Short: "Record triage vitals",
		Example: `  opdflow visit vitals v-1 --vital HEART_RATE=72 --vital TEMP=37.2:C --bp 120/80
  opdflow visit vitals v-1 --bp 140/90/105 --triage-level URGENT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inputs []vitalInput
			if bp != "" {
				in, err := parseBloodPressure(bp)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}
			for _, raw := range vitals {
				in, err := parseVital(raw)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}
			return runTransition(cmd, opts, args[0], flowmodel.ActionRecordVitals, func(eng *flowengine.Engine) error {
				if err := fillVitals(eng, inputs); err != nil {
					return err
				}
				if triageLevel != "" {
					if err := eng.SetField(flowmodel.ActionRecordVitals, "triageLevel", strings.ToUpper(triageLevel)); err != nil {
						return err
					}
				}
				if triageNotes != "" {
					return eng.SetField(flowmodel.ActionRecordVitals, "triageNotes", triageNotes)
				}
				return nil
			}, nil)
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&vitals, "vital", nil, "vital sign as TYPE=VALUE[:UNIT] (repeatable)")
	f.StringVar(&bp, "bp", "", "blood pressure as SYSTOLIC/DIASTOLIC[/MAP]")
	f.StringVar(&triageLevel, "triage-level", "", "triage level")
	f.StringVar(&triageNotes, "triage-notes", "", "triage notes")
	return cmd
}

func reviewCmd(opts *globalOptions) *cobra.Command {
	var note string
	rows := map[flowengine.Collection]*[]string{}
	collections := []struct {
		c       flowengine.Collection
		primary string
		usage   string
	}{
		{flowengine.CollectionDiagnoses, "code", "diagnosis as CODE[,description=..][,type=PRIMARY|SECONDARY]"},
		{flowengine.CollectionProcedures, "code", "procedure as CODE[,description=..]"},
		{flowengine.CollectionLabRequests, "testId", "lab test as TEST_ID[,priority=STAT][,notes=..]"},
		{flowengine.CollectionRadiologyRequests, "testId", "radiology test as TEST_ID[,priority=STAT][,notes=..]"},
		{flowengine.CollectionMedications, "drugId", "medication as DRUG_ID[,quantity=1][,frequency=BID][,route=ORAL][,durationDays=5][,instructions=..]"},
	}
	cmd := &cobra.Command{
		Use:   "review VISIT_ID",
		Short: "Record the doctor's review and orders",
		Example: `  opdflow visit review v-1 --note "viral URI" --diagnosis "J06.9,description=Acute URI"
  opdflow visit review v-1 --note "r/o pneumonia" --lab cbc --radiology "cxr,priority=STAT"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, opts, args[0], flowmodel.ActionDoctorReview, func(eng *flowengine.Engine) error {
				if cmd.Flags().Changed("note") {
					if err := eng.SetField(flowmodel.ActionDoctorReview, "note", note); err != nil {
						return err
					}
				}
				for _, col := range collections {
					if err := addRows(eng, flowmodel.ActionDoctorReview, col.c, col.primary, *rows[col.c], 0); err != nil {
						return err
					}
				}
				return nil
			}, nil)
		},
	}
	f := cmd.Flags()
	f.StringVar(&note, "note", "", "clinical note (required)")
	for _, col := range collections {
		rows[col.c] = f.StringArray(flagForCollection(col.c), nil, col.usage+" (repeatable)")
	}
	return cmd
}

func disposeCmd(opts *globalOptions) *cobra.Command {
	var decision, facility, notes string
	cmd := &cobra.Command{
		Use:   "dispose VISIT_ID",
		Short: "Close the visit: ADMIT, SEND_TO_PHARMACY or DISCHARGE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision = strings.ToUpper(strings.TrimSpace(decision))
			var warnings []string
			if decision == flowmodel.DecisionAdmit && strings.TrimSpace(facility) == "" {
				warnings = append(warnings, "admitting without --facility; the admission will have no facility")
			}
			return runTransition(cmd, opts, args[0], flowmodel.ActionDisposition, func(eng *flowengine.Engine) error {
				kind := flowmodel.ActionDisposition
				if err := eng.SetField(kind, "decision", decision); err != nil {
					return err
				}
				if facility != "" {
					if err := eng.SetField(kind, "admissionFacilityId", facility); err != nil {
						return err
					}
				}
				if notes != "" {
					return eng.SetField(kind, "notes", notes)
				}
				return nil
			}, warnings)
		},
	}
	f := cmd.Flags()
	f.StringVar(&decision, "decision", "", "ADMIT, SEND_TO_PHARMACY or DISCHARGE")
	f.StringVar(&facility, "facility", "", "admitting facility id")
	f.StringVar(&notes, "notes", "", "disposition notes")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

// runTransition opens the visit, checks that its current stage offers
// kind, fills the draft and submits.
func runTransition(cmd *cobra.Command, opts *globalOptions, id string, kind flowmodel.ActionKind, fill func(*flowengine.Engine) error, warnings []string) error {
	ctx := cmd.Context()
	s, err := opts.open(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := s.engine.Open(ctx, id, flowmodel.ListParams{}); err != nil {
		return err
	}
	v := s.engine.View()
	if v.Panel != flowengine.PanelReady || v.Flow == nil {
		if err := s.print(opts, Report{View: v, Routes: s.shell.Paths(), Warnings: warnings}, renderFlow); err != nil {
			return err
		}
		if v.FlowError != nil {
			return fmt.Errorf("load visit %s: %s", id, v.FlowError.Code)
		}
		return ErrNotApplied
	}
	if v.Action != kind {
		if v.Terminal {
			return fmt.Errorf("visit %s is closed (%s)", id, v.Stage)
		}
		return fmt.Errorf("visit %s is at %s; its next action is %s, not %s", id, v.Stage, v.Action, kind)
	}
	if err := fill(s.engine); err != nil {
		return err
	}
	return s.finish(opts, s.engine.Submit(ctx), warnings)
}

// finish prints the post-submit view and maps the submit result to the
// command's error.
func (s *session) finish(opts *globalOptions, submitErr error, warnings []string) error {
	report := Report{View: s.engine.View(), Routes: s.shell.Paths(), Warnings: warnings}
	if errors.Is(submitErr, flowengine.ErrNotPermitted) && report.View.Offline {
		report.Warnings = append(report.Warnings, "offline; nothing was sent")
	}
	if err := s.print(opts, report, renderFlow); err != nil {
		return err
	}
	var fe *flowengine.FormError
	switch {
	case submitErr == nil:
		return nil
	case errors.As(submitErr, &fe):
		return fmt.Errorf("%w: %s", ErrNotApplied, formErrorText(fe))
	default:
		return submitErr
	}
}

func (s *session) printFlow(opts *globalOptions) error {
	v := s.engine.View()
	if err := s.print(opts, Report{View: v, Routes: s.shell.Paths()}, renderFlow); err != nil {
		return err
	}
	if v.FlowError != nil {
		return fmt.Errorf("load visit %s: %s", v.SelectedID, v.FlowError.Code)
	}
	return nil
}

func (s *session) print(opts *globalOptions, r Report, mode renderMode) error {
	format, err := formatterFor(opts.output)
	if err != nil {
		return err
	}
	return format(s.out, r, mode)
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/longevity/longevity-backend/app"
	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/services"
	"github.com/longevity/longevity-backend/services/query"
	"github.com/longevity/longevity-backend/utils"
)

// questionAnswerer is the slice of the query service the ask command needs
type questionAnswerer interface {
	Handle(ctx context.Context, req *query.Request) (*query.Result, error)
}

type askOptions struct {
	age         int
	weight      float64
	height      float64
	gender      string
	activity    string
	goal        string
	diet        string
	showSources bool
}

func newAskCmd() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer a single question from the terminal",
		Example: `  longevity ask "Quante proteine servono dopo i 60 anni?"
  longevity ask --age 65 --goal "mantenere la massa muscolare" "Quante proteine al giorno?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ud, err := opts.validUserData(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, logger, err := bootstrap(ctx)
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close(context.Background())

			question := strings.Join(args, " ")
			return ask(ctx, deps.Query, cmd.OutOrStdout(), question, ud, opts.showSources)
		},
	}

	opts.bindFlags(cmd.Flags())

	return cmd
}

func (o *askOptions) bindFlags(f *pflag.FlagSet) {
	f.IntVar(&o.age, "age", 0, "age in years")
	f.Float64Var(&o.weight, "weight", 0, "weight in kg")
	f.Float64Var(&o.height, "height", 0, "height in cm")
	f.StringVar(&o.gender, "gender", "", "gender")
	f.StringVar(&o.activity, "activity", "", "activity level, e.g. sedentario")
	f.StringVar(&o.goal, "goal", "", "personal goal")
	f.StringVar(&o.diet, "diet", "", "dietary preferences")
	f.BoolVar(&o.showSources, "sources", false, "print the passages the answer is grounded on")
}

// userData builds UserData from the flags the user actually set.
// It returns nil when none were set.
func (o *askOptions) userData(flags *pflag.FlagSet) *rag.UserData {
	ud := &rag.UserData{}
	if flags.Changed("age") {
		ud.Age = &o.age
	}
	if flags.Changed("weight") {
		ud.Weight = &o.weight
	}
	if flags.Changed("height") {
		ud.Height = &o.height
	}
	if flags.Changed("gender") {
		ud.Gender = &o.gender
	}
	if flags.Changed("activity") {
		ud.ActivityLevel = &o.activity
	}
	if flags.Changed("goal") {
		ud.Goal = &o.goal
	}
	if flags.Changed("diet") {
		ud.DietaryPreferences = &o.diet
	}
	if ud.IsEmpty() {
		return nil
	}
	return ud
}

// validUserData is userData checked against the same rules as the HTTP API
func (o *askOptions) validUserData(flags *pflag.FlagSet) (*rag.UserData, error) {
	ud := o.userData(flags)
	if ud == nil {
		return nil, nil
	}
	if err := utils.ValidateStruct(ud); err != nil {
		return nil, &exitError{code: exitFailure, err: fmt.Errorf("invalid user data: %w", err)}
	}
	return ud, nil
}

// ask runs one question through the pipeline and prints the answer.
// No evidence exits with exitNoEvidence; failures exit with exitFailure.
func ask(ctx context.Context, svc questionAnswerer, out io.Writer, question string, ud *rag.UserData, showSources bool) error {
	result, err := svc.Handle(ctx, &query.Request{Question: question, UserData: ud})
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	if result.State == query.StateNoEvidenceFound {
		fmt.Fprintln(out, services.ErrNoEvidence.Message)
		return &exitError{code: exitNoEvidence}
	}

	fmt.Fprintln(out, result.Answer.Text)

	if showSources && len(result.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Fonti:")
		for _, p := range result.Sources {
			source := p.Source
			if source == "" {
				source = p.DocumentID
			}
			fmt.Fprintf(out, "  [%d] %s (score %.3f)\n", p.Index, source, p.Score)
		}
	}
	return nil
}

// Package cli implements the critique operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"resume-critique/internal/intake"
	"resume-critique/internal/pipeline"
	"resume-critique/internal/submissions"
	"resume-critique/internal/wipe"
)

const (
	app          = "critique"
	defaultOwner = "operator:local"

	promptYes = "Yes"
	promptNo  = "No"
)

// Backend is the subset of the intake service the commands use.
type Backend interface {
	Submit(ctx context.Context, sub pipeline.Submission, mode intake.Mode) (intake.Outcome, error)
	Get(ctx context.Context, owner, id string) (submissions.Record, error)
	List(ctx context.Context, owner string) ([]submissions.Record, error)
	Wipe(ctx context.Context, owner string) (wipe.Report, error)
}

// Options wires the commands to a backend. Connect is called lazily so --help works without
// any store configured.
type Options struct {
	Connect func(ctx context.Context) (Backend, error)
	Out     io.Writer
	Confirm func(label string) (bool, error)
}

type runtime struct {
	opts Options
	v    *viper.Viper
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Confirm == nil {
		opts.Confirm = confirmPrompt
	}
	rt := &runtime{opts: opts, v: viper.New()}

	root := &cobra.Command{
		Use:           app,
		Short:         "critique submits resumes for analysis and manages stored submissions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("owner", defaultOwner, "identity whose submissions are used")
	root.PersistentFlags().BoolP("json", "j", false, "print JSON instead of text")
	_ = rt.v.BindPFlag("owner", root.PersistentFlags().Lookup("owner"))
	_ = rt.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = rt.v.BindEnv("owner", "CRITIQUE_OWNER")

	root.AddCommand(
		rt.submitCommand(),
		rt.listCommand(),
		rt.showCommand(),
		rt.wipeCommand(),
	)
	return root
}

func (rt *runtime) owner() string {
	return rt.v.GetString("owner")
}

func (rt *runtime) jsonOutput() bool {
	return rt.v.GetBool("json")
}

func (rt *runtime) backend(ctx context.Context) (Backend, error) {
	if rt.opts.Connect == nil {
		return nil, fmt.Errorf("no backend configured")
	}
	return rt.opts.Connect(ctx)
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.opts.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func confirmPrompt(label string) (bool, error) {
	p := promptui.Select{
		Label: label,
		Items: []string{promptNo, promptYes},
	}
	_, choice, err := p.Run()
	if err != nil {
		return false, err
	}
	return choice == promptYes, nil
}

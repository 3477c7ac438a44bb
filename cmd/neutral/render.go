package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/CTAG07/Neutral/pkg/ipc"
	"github.com/CTAG07/Neutral/pkg/schema"
	"github.com/CTAG07/Neutral/pkg/templating"
)

// renderOptions holds the flags of the render command.
type renderOptions struct {
	templateDir string
	schemaFile  string
	data        string
	source      bool
	useIPC      bool
	ipcConfig   string
}

func (o *renderOptions) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("render", pflag.ContinueOnError)
	fs.StringVarP(&o.templateDir, "template-dir", "t", ".", "template directory for the local engine")
	fs.StringVarP(&o.schemaFile, "schema", "s", "", "schema file (JSON, or YAML by extension)")
	fs.StringVarP(&o.data, "data", "d", "", "JSON object merged over the schema")
	fs.BoolVar(&o.source, "source", false, "treat the argument as template source instead of a path")
	fs.BoolVar(&o.useIPC, "ipc", false, "render with a neutral-ipc engine instead of the local engine")
	fs.StringVar(&o.ipcConfig, "ipc-config", ipc.DefaultConfigFile, "IPC client configuration file")
	return fs
}

func newRenderCmd() *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Render a template and print the result",
		Long: `Render a template against a schema. The rendered content goes to stdout,
the status line to stderr. Redirects and error statuses raised by the
template are reported, not treated as failures; the command only fails
when the engine could not render at all.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args[0])
		},
	}
	cmd.Flags().AddFlagSet(opts.flagSet())
	return cmd
}

func runRender(cmd *cobra.Command, opts *renderOptions, target string) error {
	logger := newLogger(cmd)

	s := schema.New()
	if opts.schemaFile != "" {
		loaded, err := schema.LoadFile(opts.schemaFile)
		if err != nil {
			return err
		}
		s = loaded
	}

	var renderer templating.Renderer
	if opts.useIPC {
		cfg, err := ipc.LoadConfig(opts.ipcConfig)
		if err != nil {
			return err
		}
		logger.Debug("Using IPC engine", "address", cfg.Addr())
		renderer = ipc.NewClient(cfg)
	} else {
		cfg := templating.DefaultConfig()
		cfg.TemplateDir = opts.templateDir
		m, err := templating.NewManager(logger, cfg)
		if err != nil {
			return err
		}
		renderer = m
	}

	var tpl *templating.Template
	if opts.source {
		tpl = templating.NewFromSource(renderer, target, s)
	} else {
		tpl = templating.New(renderer, target, s)
	}
	if opts.data != "" {
		if err := tpl.MergeSchemaJSON([]byte(opts.data)); err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
	}

	content, err := tpl.Render(cmd.Context())
	if err != nil {
		var engineErr *templating.EngineError
		if errors.As(err, &engineErr) {
			return fmt.Errorf("engine failure: %w", err)
		}
		return err
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), content)
	status := fmt.Sprintf("status: %d %s", tpl.StatusCode(), tpl.StatusText())
	if param := tpl.StatusParam(); param != "" {
		status += " (" + param + ")"
	}
	if tpl.HasError() {
		status += " [error]"
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), status)
	return nil
}

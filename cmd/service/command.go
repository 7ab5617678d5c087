package service

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/docray-ai/docray/app/core"
	"github.com/docray-ai/docray/app/logic/v1/process"
)

type Options struct {
	ConfigPath string
}

func (o *Options) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.ConfigPath, "config", "c", "", "init api by given config")
}

func NewCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "service",
		Short: "http api service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func Run(opts *Options) error {
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
	serve(app)
	return nil
}

func NewWorkerCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunWorker(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func RunWorker(opts *Options) error {
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))

	p := process.NewProcess(app)
	if err := p.Start(); err != nil {
		return err
	}
	fmt.Println("Worker starting...")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	p.Stop()
	return nil
}

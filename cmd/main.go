package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docray-ai/docray/cmd/service"
)

func main() {
	root := &cobra.Command{
		Use:   "docray",
		Short: "docray",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("empty command")
		},
	}

	root.AddCommand(service.NewCommand(), service.NewWorkerCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

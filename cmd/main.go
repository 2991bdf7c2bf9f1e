/*
Copyright 2025 SuperCV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/supercvhq/supercv"
	"github.com/supercvhq/supercv/config"
	"github.com/supercvhq/supercv/database"
	"github.com/supercvhq/supercv/internal/notification"
)

// SuperCV represents the CLI application, encapsulating the root Cobra command.
type SuperCV struct {
	cmd *cobra.Command
}

// supercvInstance holds the service instance and its configuration, shared by
// all subcommands.
type supercvInstance struct {
	service *supercv.SuperCV
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the service before any command
// runs.
func preRun(app *supercvInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("supercv.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newService, err := setupSuperCV(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.service = newService
		app.cnf = cnf

		return nil
	}
}

// setupSuperCV creates the service from the configuration, connecting the
// datasource first.
func setupSuperCV(cfg *config.Configuration) (*supercv.SuperCV, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newService, err := supercv.NewSuperCV(db)
	if err != nil {
		return nil, fmt.Errorf("error creating supercv: %v", err)
	}
	return newService, nil
}

// NewCLI creates the command-line interface for the SuperCV backend.
func NewCLI() *SuperCV {
	var configFile string
	b := &supercvInstance{}

	var rootCmd = &cobra.Command{
		Use:   "supercv",
		Short: "CV analysis backend",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./supercv.json", "Configuration file for supercv")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))

	return &SuperCV{cmd: rootCmd}
}

func (w SuperCV) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"search-agent/internal/agent/batch"
	"search-agent/internal/agent/completion"
	"search-agent/internal/agent/recorder"
	apihttp "search-agent/internal/api/http"
	"search-agent/internal/app"
	"search-agent/pkg/config"
	"search-agent/pkg/log"
)

const version = "0.1.0"

// rootFlags 全局参数
type rootFlags struct {
	configPath string
	setting    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "search-agent",
		Short:         "Tool-augmented question answering over web search, browsing, shopping, maps and scholar tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "config file (yaml)")
	root.PersistentFlags().StringVar(&f.setting, "setting", "", "run setting: nosearch | search | browsing | full")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "override log.level")

	root.AddCommand(newRunCmd(f), newAskCmd(f), newToolsCmd(f), newConfigCmd(f))
	return root
}

// load 读取配置并应用命令行覆盖
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.setting != "" {
		if err := cfg.Run.ApplySetting(f.setting); err != nil {
			return nil, err
		}
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

func newRunCmd(f *rootFlags) *cobra.Command {
	var (
		data, predictions, trajectories string
		workers, limit                  int
		appendOut                       bool
		runTimeout                      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer every question in a JSONL dataset and write predictions and trajectories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Run.Workers = workers
			}
			if cmd.Flags().Changed("limit") {
				cfg.Run.Limit = limit
			}
			if cmd.Flags().Changed("run-timeout") {
				cfg.Run.RunTimeout = runTimeout
			}
			logger, err := app.NewLogger(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := app.NewBootstrap(ctx, cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer b.Close()

			opts := app.RunOptions{
				DataPath:     data,
				Predictions:  predictions,
				Trajectories: trajectories,
				Append:       appendOut,
			}
			if cfg.Monitoring.HTTP.Enable {
				apihttp.SetLogger(logger, nil)
				handler := apihttp.NewHandler(logger)
				srv := apihttp.Start(cfg.Monitoring.HTTP.Addr, handler, logger)
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
				opts.OnProgress = func(runID string, p *batch.Progress) { handler.Track(runID, p) }
			}

			sum, err := b.RunBatch(ctx, opts)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "input JSONL dataset ({id, question, answers} per line)")
	cmd.Flags().StringVar(&predictions, "predictions", "", "prediction output path (default output.predictions)")
	cmd.Flags().StringVar(&trajectories, "trajectories", "", "trajectory output path (default output.trajectories)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent workers (default run.workers)")
	cmd.Flags().IntVar(&limit, "limit", 0, "only process the first N questions")
	cmd.Flags().BoolVar(&appendOut, "append", false, "append to existing output files instead of truncating")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "global run deadline (default run.run_timeout)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func printSummary(w io.Writer, s *app.Summary) {
	fmt.Fprintf(w, "run %s: %d questions in %s (%d tool calls)\n", s.RunID, s.Total, s.Duration.Round(time.Millisecond), s.ToolCalls)
	for _, line := range s.StatusLines() {
		fmt.Fprintln(w, "  "+line)
	}
	if s.PersistErrors > 0 {
		fmt.Fprintf(w, "  %d records failed to persist\n", s.PersistErrors)
	}
}

func newAskCmd(f *rootFlags) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and print its trajectory as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			logger := log.NewWithWriter(&log.Config{Level: cfg.Log.Level, Format: "text"}, cmd.ErrOrStderr())
			b, err := app.NewBootstrap(cmd.Context(), cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer b.Close()

			t, err := b.Ask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pred, traj := recorder.NewRecords("", t)
			var out any = pred
			if full {
				out = traj
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&full, "trajectory", true, "print the full trajectory record instead of the prediction")
	return cmd
}

func newToolsCmd(f *rootFlags) *cobra.Command {
	var prompt bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool schemas advertised for the configured setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			b, err := app.NewBootstrap(cmd.Context(), cfg, log.Nop(), app.Options{SkipAdapter: true})
			if err != nil {
				return err
			}
			defer b.Close()

			w := cmd.OutOrStdout()
			if prompt {
				_, err := fmt.Fprintln(w, completion.SystemPrompt(b.Tools.Specs(), completion.PromptOptions{ReferenceDate: cfg.Prompt.ReferenceDate}))
				return err
			}
			raw, err := b.Tools.SchemasForLLM()
			if err != nil {
				return err
			}
			_, err = w.Write(append(raw, '\n'))
			return err
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "print the system prompt instead of the schemas")
	return cmd
}

func newConfigCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			masked := cfg.Masked()
			out, err := yaml.Marshal(&masked)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}
			return nil
		},
	}
}

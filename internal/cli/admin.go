/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/bmuddha/shmemq/internal/segment"
	"github.com/bmuddha/shmemq/internal/wake"
)

// inspectReport is the JSON form of inspect's output.
type inspectReport struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Occupancy uint32 `json:"occupancy"`
	SyncWord  uint32 `json:"sync_word"`
	SyncState string `json:"sync_state"`
}

func newInspectCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the size and header of a queue object",
		Long: `Read the header of an existing queue object without attaching to it:
its size, the occupancy counter and the state of the sync word. Values
are a snapshot and may change while a producer and consumer are running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := segment.Inspect(a.cfg.Queue.Name)
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("queue %s does not exist", a.cfg.Queue.Name)
			}
			if err != nil {
				return err
			}
			r := inspectReport{
				Name:      info.Name,
				Path:      info.Path,
				Size:      info.Size,
				Occupancy: info.Occupancy,
				SyncWord:  info.SyncWord,
				SyncState: wake.Describe(info.SyncWord),
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			fmt.Fprintf(out, "name:       %s\n", r.Name)
			fmt.Fprintf(out, "path:       %s\n", r.Path)
			fmt.Fprintf(out, "size:       %d bytes\n", r.Size)
			fmt.Fprintf(out, "occupancy:  %d\n", r.Occupancy)
			fmt.Fprintf(out, "sync word:  %#08x (%s)\n", r.SyncWord, r.SyncState)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newUnlinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink",
		Short: "Remove a queue object left behind by a crashed creator",
		Long: `Remove the named queue object and its semaphores, if any. Processes
that still have the queue open keep working; new opens create a fresh
queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := a.cfg.Queue.Name
			err := segment.Remove(name)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not present\n", name)
			case err != nil:
				return err
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed\n", name)
			}
			if err := wake.Unlink(name); err != nil {
				return err
			}
			a.queueLog().Debug("queue unlinked")
			return nil
		},
	}
}

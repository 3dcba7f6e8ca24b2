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
	"bufio"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bmuddha/shmemq"
)

func newProduceCmd(a *app) *cobra.Command {
	var count uint64
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Write a uint64 sequence, or stdin lines with --slice",
		Long: `Write to the queue until done or interrupted.

Without --slice, writes the values 0..count-1 (count 0 means forever).
With --slice, writes each line of stdin as one record, without the
newline, stopping at EOF or after count records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			var n uint64
			if a.cfg.Queue.Slice {
				n, err = produceLines(cmd, s, count)
			} else {
				n, err = produceSequence(cmd, s, count)
			}
			a.queueLog().Info("producer finished", "records", n, "err", err)
			if stopped(err) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Uint64Var(&count, "count", 0, "number of values or records to write (0: unlimited)")
	return cmd
}

func produceSequence(cmd *cobra.Command, s shmemq.Settings, count uint64) (uint64, error) {
	p, err := shmemq.NewProducer[uint64](s)
	if err != nil {
		return 0, err
	}
	defer p.Close()

	ctx := cmd.Context()
	var i uint64
	for ; count == 0 || i < count; i++ {
		if err := p.ProduceContext(ctx, i); err != nil {
			return i, err
		}
	}
	return i, nil
}

func produceLines(cmd *cobra.Command, s shmemq.Settings, count uint64) (uint64, error) {
	p, err := shmemq.NewSliceProducer(s)
	if err != nil {
		return 0, err
	}
	defer p.Close()

	ctx := cmd.Context()
	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 0, 64*1024), max(p.MaxRecord(), 64*1024))
	var n uint64
	for (count == 0 || n < count) && sc.Scan() {
		if err := p.ProduceSliceContext(ctx, sc.Bytes()); err != nil {
			return n, err
		}
		n++
	}
	return n, sc.Err()
}

func newConsumeCmd(a *app) *cobra.Command {
	var count uint64
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Print values, or records with --slice, as they arrive",
		Long: `Read from the queue and print one value or record per line, until
count items were read or the command is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			var n uint64
			if a.cfg.Queue.Slice {
				n, err = consumeLines(cmd, s, count)
			} else {
				n, err = consumeSequence(cmd, s, count)
			}
			a.queueLog().Info("consumer finished", "records", n, "err", err)
			if stopped(err) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Uint64Var(&count, "count", 0, "number of values or records to read (0: unlimited)")
	return cmd
}

func consumeSequence(cmd *cobra.Command, s shmemq.Settings, count uint64) (uint64, error) {
	c, err := shmemq.NewConsumer[uint64](s)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	ctx := cmd.Context()
	w := bufio.NewWriter(cmd.OutOrStdout())
	defer w.Flush()
	var n uint64
	for ; count == 0 || n < count; n++ {
		v, err := c.ConsumeContext(ctx)
		if err != nil {
			return n, err
		}
		w.WriteString(strconv.FormatUint(v, 10))
		w.WriteByte('\n')
		if c.Len() == 0 {
			w.Flush()
		}
	}
	return n, nil
}

func consumeLines(cmd *cobra.Command, s shmemq.Settings, count uint64) (uint64, error) {
	c, err := shmemq.NewSliceConsumer(s)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	ctx := cmd.Context()
	w := bufio.NewWriter(cmd.OutOrStdout())
	defer w.Flush()
	var n uint64
	for ; count == 0 || n < count; n++ {
		v, err := c.ConsumeSliceContext(ctx)
		if err != nil {
			return n, err
		}
		w.Write(v.Bytes())
		w.WriteByte('\n')
		if err := v.Release(); err != nil {
			return n, fmt.Errorf("release record %d: %w", n, err)
		}
		if c.Len() == 0 {
			w.Flush()
		}
	}
	return n, nil
}

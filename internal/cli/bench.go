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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"code.hybscloud.com/iox"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bmuddha/shmemq"
)

// benchResult is what one bench run measured.
type benchResult struct {
	Records int
	Bytes   int64
	Elapsed time.Duration
}

func (r benchResult) rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Records) / r.Elapsed.Seconds()
}

func newBenchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure throughput through a queue inside this process",
		Long: `Open both ends of the queue in this process, move bench.count values
(or records of bench.record_size bytes with --slice) from a producer
goroutine to a consumer goroutine through the shared segment, and report
the rate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			var res benchResult
			if a.cfg.Queue.Slice {
				res, err = benchSlices(s, a.cfg.Bench.Count, a.cfg.Bench.RecordSize)
			} else {
				res, err = benchValues(s, a.cfg.Bench.Count)
			}
			if err != nil {
				return err
			}
			a.queueLog().Info("bench finished",
				"sync", s.Sync.Resolve().String(),
				"records", res.Records,
				"bytes", res.Bytes,
				"elapsed", res.Elapsed,
				"records_per_sec", int64(res.rate()),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d bytes in %v (%.0f records/s, %.1f MB/s)\n",
				res.Records, res.Bytes, res.Elapsed.Round(time.Microsecond), res.rate(),
				float64(res.Bytes)/res.Elapsed.Seconds()/1e6)
			return nil
		},
	}
	cmd.Flags().Int("count", 0, "records to move (overrides bench.count)")
	cmd.Flags().Int("record-size", 0, "payload bytes per record in slice mode (overrides bench.record_size)")
	_ = viper.BindPFlag("bench.count", cmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("bench.record_size", cmd.Flags().Lookup("record-size"))
	return cmd
}

func benchValues(s shmemq.Settings, count int) (benchResult, error) {
	c, err := shmemq.NewConsumer[uint64](s)
	if err != nil {
		return benchResult{}, err
	}
	defer c.Close()
	p, err := shmemq.NewProducer[uint64](s)
	if err != nil {
		return benchResult{}, err
	}
	defer p.Close()

	start := time.Now()
	var stop atomic.Bool
	errc := make(chan error, 1)
	go func() {
		for i := range count {
			if stop.Load() {
				break
			}
			if err := p.Produce(uint64(i)); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()
	drain := func() error {
		_, err := c.TryConsume()
		return err
	}
	for i := range count {
		v, err := c.Consume()
		if err == nil && v != uint64(i) {
			err = fmt.Errorf("bench: read %d, want %d", v, i)
		}
		if err != nil {
			stopProducer(&stop, errc, drain)
			return benchResult{}, err
		}
	}
	elapsed := time.Since(start)
	if err := <-errc; err != nil {
		return benchResult{}, err
	}
	return benchResult{Records: count, Bytes: int64(count) * 8, Elapsed: elapsed}, nil
}

func benchSlices(s shmemq.Settings, count, size int) (benchResult, error) {
	c, err := shmemq.NewSliceConsumer(s)
	if err != nil {
		return benchResult{}, err
	}
	defer c.Close()
	p, err := shmemq.NewSliceProducer(s)
	if err != nil {
		return benchResult{}, err
	}
	defer p.Close()
	if size > p.MaxRecord() {
		return benchResult{}, fmt.Errorf("%w: record size %d, limit %d", shmemq.ErrRecordTooLarge, size, p.MaxRecord())
	}

	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	errBadRecord := errors.New("bench: record length mismatch")
	drain := func() error {
		v, err := c.TryConsumeSlice()
		if err != nil {
			return err
		}
		v.Release()
		return nil
	}

	start := time.Now()
	var stop atomic.Bool
	errc := make(chan error, 1)
	go func() {
		for range count {
			if stop.Load() {
				break
			}
			if err := p.ProduceSlice(payload); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()
	for range count {
		err := c.ConsumeSliceFunc(func(b []byte) error {
			if len(b) != size {
				return errBadRecord
			}
			return nil
		})
		if err != nil {
			stopProducer(&stop, errc, drain)
			return benchResult{}, err
		}
	}
	elapsed := time.Since(start)
	if err := <-errc; err != nil {
		return benchResult{}, err
	}
	return benchResult{Records: count, Bytes: int64(count) * int64(size), Elapsed: elapsed}, nil
}

// stopProducer asks the producer goroutine to finish and waits until it
// has, draining the queue meanwhile so a parked produce call completes.
// The endpoints must stay open until it returns.
func stopProducer(stop *atomic.Bool, errc <-chan error, drain func() error) {
	stop.Store(true)
	var bo iox.Backoff
	for {
		select {
		case <-errc:
			return
		default:
		}
		if drain() == nil {
			bo.Reset()
		} else {
			bo.Wait()
		}
	}
}

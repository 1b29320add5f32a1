package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"flow-classifier/internal/engine"
	"flow-classifier/internal/model"
	"flow-classifier/internal/parser"
	"flow-classifier/internal/shmem"
	"flow-classifier/pkg/wellknown"
)

var resultHeader = []string{"label", "src", "dst", "protocol", "src_port", "dst_port", "matched", "flow", "ref"}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Load the flows and print the resulting table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := buildTable(opts, nil)
			if err != nil {
				return err
			}
			if !table.IsSorted() {
				slog.Error("Flow table is out of priority order")
			}
			return table.Print(cmd.OutOrStdout())
		},
	}
}

func newClassifyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify lookup keys against the flow table",
		Long: `classify reads lookup keys from a CSV file (--keys) or a pcap capture
(--pcap), looks each one up in the flow table and writes one CSV row per key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(opts)
		},
	}
	cmd.Flags().String("keys", "", "Lookup key CSV file (label,src,dst,protocol,src_port,dst_port)")
	cmd.Flags().String("pcap", "", "pcap capture to read lookup keys from")
	cmd.Flags().String("out", "results.csv", "Output CSV file")
	cmd.Flags().IntP("workers", "w", defaultWorkers(), "Number of concurrent workers")
	cmd.Flags().String("metrics-file", "", "Write table metrics in text exposition format to this file")
	return cmd
}

func newPublishCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a snapshot of the flow table to shared memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := buildTable(opts, nil)
			if err != nil {
				return err
			}
			data, err := json.Marshal(table.Rules())
			if err != nil {
				return err
			}
			store := shmem.Store{Dir: opts.shmDir}
			if err := store.Put(opts.shmName, data); err != nil {
				slog.Error("Failed to publish snapshot", "name", opts.shmName, "error", err)
				return err
			}
			slog.Info("Snapshot published", "name", opts.shmName, "rules", table.Size(), "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().String("name", "flowtable", "Shared memory region name")
	return cmd
}

func newInspectCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a flow table snapshot published to shared memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := readSnapshot(shmem.Store{Dir: opts.shmDir}, opts.shmName)
			if err != nil {
				slog.Error("Failed to read snapshot", "name", opts.shmName, "error", err)
				return err
			}
			return engine.PrintRules(cmd.OutOrStdout(), rules)
		},
	}
	cmd.Flags().String("name", "flowtable", "Shared memory region name")
	return cmd
}

func readSnapshot(store shmem.Store, name string) ([]engine.RuleInfo, error) {
	size, err := store.Size(name)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("snapshot %s is empty", name)
	}
	region, err := store.Map(name, size, shmem.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer region.Close()

	var rules []engine.RuleInfo
	if err := json.Unmarshal(region.Bytes(), &rules); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return rules, nil
}

func loadKeys(keysPath, pcapPath string) ([]model.LabeledKey, error) {
	switch {
	case keysPath != "" && pcapPath != "":
		return nil, errors.New("--keys and --pcap are mutually exclusive")
	case keysPath != "":
		f, err := os.Open(keysPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parser.ParseKeys(f)
	case pcapPath != "":
		f, err := os.Open(pcapPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parser.ReadPcapKeys(f)
	default:
		return nil, errors.New("one of --keys or --pcap must be provided")
	}
}

func runClassify(opts *options) error {
	slog.Info("Starting flow classification")
	startTime := time.Now()

	reg := prometheus.NewRegistry()
	table, err := buildTable(opts, reg)
	if err != nil {
		return err
	}

	keys, err := loadKeys(opts.keysFile, opts.pcapFile)
	if err != nil {
		slog.Error("Failed to load lookup keys", "error", err)
		return err
	}
	slog.Info("Lookup keys loaded", "count", len(keys))

	workers := opts.workers
	if workers < 1 {
		workers = 1
	}
	total := uint64(len(keys))

	var completed uint64
	progressDone := make(chan struct{})
	if total > 0 {
		go reportProgress(total, &completed, progressDone)
	}

	tasks := make(chan model.LabeledKey, workers*100)
	results := make(chan model.Classification, workers*100)
	var wg sync.WaitGroup

	slog.Info("Starting result writer", "output_file", opts.outFile)
	var writerWg sync.WaitGroup
	var writeErr error
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		writeErr = resultWriter(results, opts.outFile, &completed)
	}()

	slog.Info("Starting classifier workers", "count", workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(&wg, i+1, table, tasks, results)
	}

	go func() {
		for _, k := range keys {
			tasks <- k
		}
		close(tasks)
	}()

	wg.Wait()
	close(results)
	writerWg.Wait()
	close(progressDone)
	if writeErr != nil {
		return writeErr
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			slog.Error("Failed to write metrics", "path", opts.metricsFile, "error", err)
			return err
		}
	}

	slog.Info("Classification complete", "keys", total, "duration", time.Since(startTime))
	return nil
}

func reportProgress(total uint64, completed *uint64, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var lastLogged uint64
	for {
		select {
		case <-ticker.C:
			n := atomic.LoadUint64(completed)
			if n == lastLogged {
				continue
			}
			percent := float64(n) / float64(total) * 100
			slog.Info("Progress", "total_keys", total, "completed_keys", n, "percent", fmt.Sprintf("%.2f", percent))
			lastLogged = n
			if n >= total {
				return
			}
		case <-done:
			return
		}
	}
}

func worker(wg *sync.WaitGroup, id int, table *engine.Table[model.Target], tasks <-chan model.LabeledKey, results chan<- model.Classification) {
	defer wg.Done()
	slog.Debug("Worker started", "id", id)
	for task := range tasks {
		target, ok := table.Lookup(task.Key)
		results <- model.Classification{
			Label:   task.Label,
			Key:     task.Key,
			Matched: ok,
			Target:  target,
		}
	}
	slog.Debug("Worker finished", "id", id)
}

func classificationRecord(c model.Classification) []string {
	return []string{
		c.Label,
		c.Key.Src.String(),
		c.Key.Dst.String(),
		wellknown.ProtocolName(c.Key.Protocol),
		strconv.Itoa(int(c.Key.SrcPort)),
		strconv.Itoa(int(c.Key.DstPort)),
		strconv.FormatBool(c.Matched),
		c.Target.Flow,
		c.Target.Ref,
	}
}

// resultWriter drains results into outPath. It keeps draining after a
// write failure so workers never block.
func resultWriter(results <-chan model.Classification, outPath string, completed *uint64) error {
	outFile, err := os.Create(outPath)
	if err != nil {
		slog.Error("Failed to create output file", "path", outPath, "error", err)
		for range results {
		}
		return err
	}
	defer outFile.Close()

	w := csv.NewWriter(outFile)
	w.Write(resultHeader)

	var written, matched uint64
	for result := range results {
		w.Write(classificationRecord(result))
		if result.Matched {
			matched++
		}
		written++
		if written%1024 == 0 {
			atomic.StoreUint64(completed, written)
		}
	}
	atomic.StoreUint64(completed, written)

	w.Flush()
	if err := w.Error(); err != nil {
		slog.Error("Failed to write results", "path", outPath, "error", err)
		return err
	}
	slog.Info("Result writer finished", "written", written, "matched", matched)
	return nil
}

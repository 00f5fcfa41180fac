package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/packer/internal/queue"
	"github.com/luxfi/packer/internal/storage"
	"github.com/luxfi/packer/internal/wire"
)

var (
	submitKind  string
	submitInput string
)

func init() {
	submitCmd.Flags().StringVar(&submitKind, "kind", string(queue.KindPackEncrypt), "job kind (pack_encrypt, compress, decrypt_unpack)")
	submitCmd.Flags().StringVar(&submitInput, "input", "", "input blob handle; when empty, records are read from the file argument or stdin")
}

var submitCmd = &cobra.Command{
	Use:   "submit [records.json]",
	Short: "Enqueue a packing job for the worker",
	Long: `Store a batch of records and enqueue a job over it, or enqueue a job over a
blob already in storage (for example the result of a pack_encrypt job).

Records are a JSON array of arrays of non-negative integers.

Examples:
  echo '[[1,2,3],[4,5,6]]' | packer submit
  packer submit --kind compress --input 3f2a...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	kind := queue.Kind(submitKind)
	switch kind {
	case queue.KindPackEncrypt, queue.KindCompress, queue.KindDecryptUnpack:
	default:
		return fmt.Errorf("unknown job kind %q", submitKind)
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	handle := storage.Handle(submitInput)
	if handle == "" {
		if kind != queue.KindPackEncrypt {
			return fmt.Errorf("%s jobs need --input", kind)
		}
		data, err := readRecords(args)
		if err != nil {
			return err
		}
		if handle, err = store.Store(ctx, data); err != nil {
			return fmt.Errorf("store records: %w", err)
		}
	} else if err := handle.Validate(); err != nil {
		return err
	}

	q, err := openQueue(cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	job := &queue.Job{Kind: kind, InputHandle: string(handle)}
	if err := q.Push(ctx, job); err != nil {
		return err
	}
	cmd.Println(job.ID)
	return nil
}

func readRecords(args []string) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	var records [][]*big.Int
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	return wire.EncodeRecords(records)
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and result handle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		q, err := openQueue(cfg)
		if err != nil {
			return err
		}
		defer q.Close()

		job, err := q.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(struct {
			*queue.Job
			Status string `json:"status"`
		}{job, job.Status.String()}, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	},
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ecotrace-srl/rentri-client/cmd/flags"
	"github.com/ecotrace-srl/rentri-client/credential"
	"github.com/ecotrace-srl/rentri-client/dataset"
	"github.com/ecotrace-srl/rentri-client/interfaces"
	"github.com/ecotrace-srl/rentri-client/merge"
	"github.com/ecotrace-srl/rentri-client/registry"
	"github.com/ecotrace-srl/rentri-client/storage"
	"github.com/ecotrace-srl/rentri-client/suppliers"
	"github.com/ecotrace-srl/rentri-client/workflow"
)

var blockFlag = &cli.StringFlag{
	Name:     "block",
	Required: true,
	Usage:    "vidimazione block code",
}

func main() {
	app := &cli.App{
		Name:  "vidima",
		Usage: "RENTRI vidimazione-formulari client",
		Flags: append(append([]cli.Flag{}, flags.CommonFlags...),
			append(flags.CredentialFlags, flags.BaseURLFlag, flags.AudienceFlag)...),
		Commands: []*cli.Command{
			{
				Name:  "blocks",
				Usage: "List the vidimazione blocks of the credential's fiscal code",
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx)
					if err != nil {
						return err
					}
					blocks, err := client.ListBlocks(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(blocks)
				},
			},
			{
				Name:  "fir",
				Usage: "Inspect and cancel certified documents",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List documents, optionally filtered",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "block", Usage: "restrict to one block code"},
							&cli.StringFlag{Name: "status", Usage: "restrict to a status: vidimato or annullato"},
							&cli.StringFlag{Name: "text", Usage: "free-text filter on number, block and sequence"},
							&cli.IntFlag{Name: "page", Value: 1, Usage: "1-based page of the filtered view"},
						},
						Action: runList,
					},
					{
						Name:  "cancel",
						Usage: "Cancel (annulla) certified documents by sequence",
						Flags: []cli.Flag{
							blockFlag,
							&cli.IntSliceFlag{Name: "sequence", Required: true, Usage: "sequence numbers to cancel"},
						},
						Action: runCancel,
					},
					{
						Name:  "verify",
						Usage: "Look up a document by its global number",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "number", Required: true, Usage: "document number"},
						},
						Action: func(cCtx *cli.Context) error {
							client, err := newClient(cCtx)
							if err != nil {
								return err
							}
							doc, err := client.VerifyDocument(cCtx.Context, cCtx.String("number"))
							if err != nil {
								return err
							}
							return printJSON(doc)
						},
					},
				},
			},
			{
				Name:  "certify",
				Usage: "Run a full certification: submit, reconcile and download artifacts",
				Flags: []cli.Flag{
					blockFlag,
					&cli.IntFlag{Name: "quantity", Required: true, Usage: "number of certifications to submit"},
					&cli.StringFlag{Name: "out", Value: ".", Usage: "artifact destination: a directory or an s3:// URI"},
				},
				Action: runCertify,
			},
			{
				Name:  "status",
				Usage: "Probe registry reachability and per-service status",
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx)
					if err != nil {
						return err
					}
					out := map[string]any{
						"reachability": client.CheckReachability(cCtx.Context),
						"services":     client.ServiceStatuses(cCtx.Context),
					}
					return printJSON(out)
				},
			},
			{
				Name:      "merge",
				Usage:     "Merge downloaded artifact PDFs into one deliverable file",
				ArgsUsage: "<pdf files...>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Value: "merged.pdf", Usage: "output PDF path"},
				},
				Action: runMerge,
			},
			{
				Name:  "supplier",
				Usage: "Manage the JSON supplier store",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Register a supplier from its PKCS#12 credential",
						Action: func(cCtx *cli.Context) error {
							logger := flags.SetupLogger(cCtx)
							cred, err := credential.LoadFile(cCtx.String(flags.P12Flag.Name), cCtx.String(flags.P12PasswordFlag.Name))
							if err != nil {
								return err
							}
							store, err := suppliers.NewStore(cCtx.String(flags.SuppliersFileFlag.Name), logger)
							if err != nil {
								return err
							}
							sup := interfaces.Supplier{
								P12Path:    cCtx.String(flags.P12Flag.Name),
								Password:   cCtx.String(flags.P12PasswordFlag.Name),
								LegalName:  cred.LegalName,
								FiscalCode: cred.FiscalCode,
							}
							if err := store.Add(sup); err != nil {
								return err
							}
							fmt.Printf("added supplier %s (%s)\n", cred.LegalName, cred.FiscalCode)
							return nil
						},
					},
					{
						Name:  "list",
						Usage: "List stored suppliers",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "search", Usage: "filter by legal name or fiscal code"},
						},
						Action: func(cCtx *cli.Context) error {
							store, err := suppliers.NewStore(cCtx.String(flags.SuppliersFileFlag.Name), flags.SetupLogger(cCtx))
							if err != nil {
								return err
							}
							return printJSON(store.Search(cCtx.String("search")))
						},
					},
					{
						Name:      "remove",
						Usage:     "Remove a supplier by id",
						ArgsUsage: "<supplier id>",
						Action: func(cCtx *cli.Context) error {
							store, err := suppliers.NewStore(cCtx.String(flags.SuppliersFileFlag.Name), flags.SetupLogger(cCtx))
							if err != nil {
								return err
							}
							return store.Remove(cCtx.Args().First())
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadCredential resolves the credential from --p12/--p12-password or,
// when --supplier is set, from the supplier store.
func loadCredential(cCtx *cli.Context, logger *slog.Logger) (*credential.Credential, error) {
	p12 := cCtx.String(flags.P12Flag.Name)
	password := cCtx.String(flags.P12PasswordFlag.Name)

	if id := cCtx.String(flags.SupplierFlag.Name); id != "" {
		store, err := suppliers.NewStore(cCtx.String(flags.SuppliersFileFlag.Name), logger)
		if err != nil {
			return nil, err
		}
		sup, ok := store.Get(id)
		if !ok {
			return nil, fmt.Errorf("supplier %s not found in %s", id, cCtx.String(flags.SuppliersFileFlag.Name))
		}
		p12, password = sup.P12Path, sup.Password
	}

	if p12 == "" {
		return nil, errors.New("no credential: pass --p12 or --supplier")
	}
	return credential.LoadFile(p12, password)
}

func newClient(cCtx *cli.Context) (*registry.Client, error) {
	logger := flags.SetupLogger(cCtx)

	cred, err := loadCredential(cCtx, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("Credential loaded", "fiscalCode", cred.FiscalCode, "legalName", cred.LegalName)

	return registry.NewClient(registry.ClientConfig{
		BaseURL:  cCtx.String(flags.BaseURLFlag.Name),
		Audience: cCtx.String(flags.AudienceFlag.Name),
		Log:      logger,
	}, cred)
}

func runList(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	ds := dataset.New(client, logger)
	if err := ds.Refresh(cCtx.Context); err != nil {
		return err
	}

	filter := dataset.Filter{
		Text:      cCtx.String("text"),
		BlockCode: cCtx.String("block"),
		Status:    interfaces.DocumentStatus(cCtx.String("status")),
	}
	entries, total := ds.Page(filter, cCtx.Int("page"))
	fmt.Fprintf(os.Stderr, "page %d/%d, %d matching documents\n",
		cCtx.Int("page"), ds.TotalPages(filter), total)
	return printJSON(entries)
}

func runCancel(cCtx *cli.Context) error {
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	blockCode := cCtx.String("block")
	for _, seq := range cCtx.IntSlice("sequence") {
		err := client.CancelDocument(cCtx.Context, blockCode, seq)
		switch {
		case err == nil:
			fmt.Printf("%s/%d cancelled\n", blockCode, seq)
		case errors.Is(err, interfaces.ErrAlreadyCancelled):
			fmt.Printf("%s/%d was already cancelled\n", blockCode, seq)
		default:
			return err
		}
	}
	return nil
}

func runCertify(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	client, err := newClient(cCtx)
	if err != nil {
		return err
	}

	blockCode := cCtx.String("block")
	blocks, err := client.ListBlocks(cCtx.Context)
	if err != nil {
		return err
	}
	var block *interfaces.Block
	for i := range blocks {
		if blocks[i].Code == blockCode {
			block = &blocks[i]
			break
		}
	}
	if block == nil {
		return fmt.Errorf("block %s not found for fiscal code %s", blockCode, client.FiscalCode())
	}

	store, err := storage.StoreFor(cCtx.String("out"), logger)
	if err != nil {
		return err
	}

	runner := workflow.NewRunner(client, store, workflow.Config{Log: logger})

	// Ctrl+C cancels the run at the next step boundary.
	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := runner.Start(ctx, workflow.Request{
		Block:    *block,
		Quantity: cCtx.Int("quantity"),
		Observer: func(ev workflow.Event) {
			if ev.Total > 0 {
				fmt.Fprintf(os.Stderr, "%s %d/%d %s\n", ev.Phase, ev.Current, ev.Total, ev.Message)
			} else {
				fmt.Fprintf(os.Stderr, "%s %s\n", ev.Phase, ev.Message)
			}
		},
	})
	if err != nil {
		return err
	}

	res := <-results
	for _, warning := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	fmt.Fprintf(os.Stderr, "run %s: submitted %d/%d, %d new documents, %d artifacts written\n",
		res.Phase, res.Submitted, res.Attempted, res.NewDocuments, res.ArtifactsWritten)
	for _, location := range res.Artifacts {
		fmt.Println(location)
	}
	return res.Err
}

func runMerge(cCtx *cli.Context) error {
	paths := cCtx.Args().Slice()
	if len(paths) == 0 {
		return errors.New("no input files")
	}

	out := cCtx.String("out")
	err := merge.Merge(paths, out, func(stage string, current, total int) {
		fmt.Fprintf(os.Stderr, "%s %d/%d\n", stage, current, total)
	})
	if err != nil {
		return err
	}
	fmt.Printf("merged %d files into %s\n", len(paths), out)
	fmt.Println(merge.DeliveryString(paths))
	return nil
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

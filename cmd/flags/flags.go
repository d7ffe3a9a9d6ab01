// Package flags holds the CLI flags and logger wiring shared by the
// vidima and mockregistry commands.
package flags

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ecotrace-srl/rentri-client/common"
	"github.com/ecotrace-srl/rentri-client/registry"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "rentri-client",
	Usage: "add 'service' tag to logs",
}

var P12Flag = &cli.StringFlag{
	Name:  "p12",
	Usage: "path to the PKCS#12 credential file",
}
var P12PasswordFlag = &cli.StringFlag{
	Name:    "p12-password",
	Usage:   "password of the PKCS#12 credential file",
	EnvVars: []string{"RENTRI_P12_PASSWORD"},
}
var SupplierFlag = &cli.StringFlag{
	Name:  "supplier",
	Usage: "supplier id to load the credential from the supplier store",
}
var SuppliersFileFlag = &cli.StringFlag{
	Name:  "suppliers-file",
	Value: "suppliers.json",
	Usage: "path of the JSON supplier store",
}

var BaseURLFlag = &cli.StringFlag{
	Name:  "base-url",
	Value: registry.DefaultBaseURL,
	Usage: "registry base URL",
}
var AudienceFlag = &cli.StringFlag{
	Name:  "audience",
	Value: registry.DefaultAudience,
	Usage: "token audience the registry expects",
}

var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	LogServiceFlag,
}

var CredentialFlags = []cli.Flag{
	P12Flag,
	P12PasswordFlag,
	SupplierFlag,
	SuppliersFileFlag,
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	infradian "github.com/jhoicas/facho-signer/internal/infrastructure/dian"
	"github.com/jhoicas/facho-signer/internal/infrastructure/dian/signer"
	"github.com/jhoicas/facho-signer/pkg/dian"
	"github.com/jhoicas/facho-signer/pkg/config"
	"github.com/jhoicas/facho-signer/pkg/logger"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		var logged loggedError
		if !errors.As(err, &logged) {
			fmt.Fprintf(os.Stderr, "facho-signer: %v\n", err)
		}
		os.Exit(1)
	}
}

// loggedError marca un error que ya quedó en el log.
type loggedError struct{ error }

func (e loggedError) Unwrap() error { return e.error }

func newRootCommand() *cobra.Command {
	var pem infradian.PEMFiles
	root := &cobra.Command{
		Use:   "facho-signer <factura.xml> <certificado.p12> <password> | --cert firma.pem [--key firma.key] <factura.xml>",
		Short: "Firma XAdES-EPES de facturas electrónicas DIAN",
		Long: "Firma una factura UBL 2.1 con el certificado del contenedor PKCS#12 (o del par PEM de --cert/--key) " +
			"y escribe el XML firmado en stdout.",
		Args: func(cmd *cobra.Command, args []string) error {
			if pem.CertPath != "" || pem.KeyPath != "" {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var keys dian.KeyLoader = pem
			if len(args) == 3 {
				keys = infradian.P12File{Path: args[1], Password: args[2]}
			}
			return sign(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], keys)
		},
	}
	root.Flags().StringVar(&pem.CertPath, "cert", "", "certificado PEM del firmante (puede traer la cadena)")
	root.Flags().StringVar(&pem.KeyPath, "key", "", "llave privada PEM (por defecto, el mismo archivo de --cert)")
	root.AddCommand(&cobra.Command{
		Use:   "inspect <certificado.p12> <password>",
		Short: "Lista el contenido de un contenedor PKCS#12",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), args[0], args[1])
		},
	})
	return root
}

func sign(stdout, stderr io.Writer, invoicePath string, keys dian.KeyLoader) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Out: stderr})

	loc, err := cfg.DIAN.Location()
	if err != nil {
		return err
	}
	svc, err := signer.NewDigitalSignatureService(signer.Config{
		Policy:             cfg.DIAN.Policy(),
		PinnedPolicyDigest: cfg.DIAN.PolicyDigest,
		IDPrefix:           cfg.DIAN.SignatureID,
		Location:           loc,
		Resolver:           signer.BundledPolicy{Path: cfg.DIAN.PolicyDocument},
		Logger:             log.Zerolog(),
	})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(invoicePath)
	if err != nil {
		return fmt.Errorf("leer factura: %w", err)
	}
	out, err := svc.Sign(data, keys)
	if err != nil {
		log.Error().Err(err).Str("factura", invoicePath).Msg("firma fallida")
		return loggedError{err}
	}
	_, err = stdout.Write(out)
	return err
}

func inspect(stdout io.Writer, path, password string) error {
	bags, err := infradian.Inspect(path, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d entradas\n", path, len(bags))
	for i, b := range bags {
		fmt.Fprintf(stdout, "\n[%d] %s", i, b.Type)
		if b.FriendlyName != "" {
			fmt.Fprintf(stdout, " (%s)", b.FriendlyName)
		}
		fmt.Fprintln(stdout)
		if b.Type != "CERTIFICATE" {
			continue
		}
		fmt.Fprintf(stdout, "    sujeto:  %s\n", b.Subject)
		fmt.Fprintf(stdout, "    emisor:  %s\n", b.Issuer)
		fmt.Fprintf(stdout, "    serial:  %s\n", b.Serial)
		fmt.Fprintf(stdout, "    sha256:  %s\n", b.Digest)
	}
	return nil
}

// Package credential converts caller-supplied PKCS#12 material into the
// signing credential used to authenticate against the registry: a private
// key handle, the certificate, the holder's fiscal code, the legal name,
// and the validity window. The credential is held by the caller and never
// persisted by this package.
package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

var (
	// ErrCredentialInvalid is returned when the PKCS#12 blob cannot be
	// decoded with the supplied password.
	ErrCredentialInvalid = errors.New("invalid credential material")

	// ErrFiscalCodeMissing is returned when no fiscal code can be
	// extracted from the certificate subject.
	ErrFiscalCodeMissing = errors.New("fiscal code not found in certificate")

	// ErrCredentialExpired is returned when the certificate validity
	// window does not cover the current time.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrUnsupportedKey is returned for key types other than RSA and ECDSA.
	ErrUnsupportedKey = errors.New("unsupported signing key type")
)

// Credential is certificate-derived signing material plus the identity
// attributes the registry expects in signed tokens.
type Credential struct {
	// Signer is the private key handle. Concretely an *rsa.PrivateKey or
	// *ecdsa.PrivateKey.
	Signer crypto.Signer

	// Certificate is the leaf certificate matching Signer.
	Certificate *x509.Certificate

	// FiscalCode is the tax identifier extracted from the subject,
	// used as the token issuer and subject.
	FiscalCode string

	// LegalName is the organization name from the subject.
	LegalName string

	// NotBefore and NotAfter delimit the validity window.
	NotBefore time.Time
	NotAfter  time.Time
}

// Load decodes a PKCS#12 credential blob and extracts the identity
// attributes the registry requires. It fails with ErrCredentialInvalid if
// the blob cannot be decoded and with ErrFiscalCodeMissing if the subject
// carries no recognizable tax identifier.
func Load(p12 []byte, password string) (*Credential, error) {
	key, cert, _, err := pkcs12.DecodeChain(p12, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: key does not implement crypto.Signer", ErrCredentialInvalid)
	}
	switch signer.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, signer)
	}

	fiscalCode := ExtractFiscalCode(cert)
	if fiscalCode == "" {
		return nil, ErrFiscalCodeMissing
	}

	return &Credential{
		Signer:      signer,
		Certificate: cert,
		FiscalCode:  fiscalCode,
		LegalName:   ExtractLegalName(cert),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}, nil
}

// LoadFile reads and decodes a PKCS#12 credential file.
func LoadFile(path, password string) (*Credential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	return Load(raw, password)
}

// Valid checks the credential's validity window against the current time.
func (c *Credential) Valid() error {
	return c.validAt(time.Now())
}

func (c *Credential) validAt(now time.Time) error {
	if c.Signer == nil || c.Certificate == nil {
		return ErrCredentialInvalid
	}
	if now.Before(c.NotBefore) || now.After(c.NotAfter) {
		return fmt.Errorf("%w: valid %s to %s",
			ErrCredentialExpired,
			c.NotBefore.Format("2006-01-02"),
			c.NotAfter.Format("2006-01-02"))
	}
	return nil
}

var (
	fiscalCodePrefixed = regexp.MustCompile(`CF:IT-([A-Z0-9]{11,16})`)
	fiscalCodeCountry  = regexp.MustCompile(`IT-([A-Z0-9]{11,16})`)
	fiscalCodePersonal = regexp.MustCompile(`\b([A-Z]{6}[0-9]{2}[A-Z][0-9]{2}[A-Z][0-9]{3}[A-Z])\b`)
	fiscalCodeNumeric  = regexp.MustCompile(`\b(\d{11})\b`)
	fiscalCodeLoose    = regexp.MustCompile(`\b([A-Z0-9]{11,16})\b`)
)

// ExtractFiscalCode pulls the holder's tax identifier out of the
// certificate subject. CNS and CA-issued certificates encode it in
// several shapes: CF:IT- prefixed, bare IT- prefixed, a 16-character
// personal code, or an 11-digit VAT number, with the subject serial
// number as a last resort. Returns "" when nothing matches.
func ExtractFiscalCode(cert *x509.Certificate) string {
	subject := cert.Subject.String()

	for _, re := range []*regexp.Regexp{fiscalCodePrefixed, fiscalCodeCountry, fiscalCodePersonal, fiscalCodeNumeric} {
		if m := re.FindStringSubmatch(subject); m != nil {
			return m[1]
		}
	}

	if serial := cert.Subject.SerialNumber; serial != "" {
		if m := fiscalCodeLoose.FindStringSubmatch(serial); m != nil {
			return m[1]
		}
	}

	return ""
}

// ExtractLegalName returns the subject organization name, falling back to
// the common name.
func ExtractLegalName(cert *x509.Certificate) string {
	if len(cert.Subject.Organization) > 0 && cert.Subject.Organization[0] != "" {
		return cert.Subject.Organization[0]
	}
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	return "Sconosciuto"
}

// Package main (cmd/vidima) implements the RENTRI vidimazione CLI.
//
// The CLI authenticates against the registry with a PKCS#12 credential,
// either passed directly (--p12/--p12-password) or looked up by id in
// the JSON supplier store (--supplier). It exposes the client's full
// surface: block listing, document listing and cancellation, the
// multi-step certification run with artifact download, document
// verification, service status probing, supplier store management and
// artifact merging into a single deliverable PDF.
//
// Example certification run against a block:
//
//	vidima --p12 ./supplier.p12 --p12-password secret \
//	    certify --block AB12 --quantity 5 --out ./artifacts
//
// Artifacts can also be written straight to S3:
//
//	vidima --supplier 01234567890 certify --block AB12 --quantity 5 \
//	    --out s3://my-bucket/fir/
package main

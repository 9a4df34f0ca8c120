package verifier

import (
	"bytes"

	"github.com/Layr-Labs/ink-verifier/pkg/identity"
	"github.com/Layr-Labs/ink-verifier/pkg/merkle"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var (
	ErrReportRootMismatch   = errors.New("report root does not match its steps")
	ErrReportBadSignature   = errors.New("report signature does not verify")
	ErrReportNothingToCheck = errors.New("report has no steps")
)

// ReportDigest is the message a report signer signs: keccak256(runID || root).
func ReportDigest(runID string, root []byte) []byte {
	return crypto.Keccak256([]byte(runID), root)
}

// SignReport sets the merkle root over the report's steps and signs it.
func SignReport(report *types.RunReport, signer *identity.Identity) error {
	tree, err := merkle.BuildStepTree(report.Steps)
	if err != nil {
		return errors.Wrap(err, "failed to build step tree")
	}

	report.Root = append([]byte{}, tree.Root[:]...)
	sig, err := signer.Sign(ReportDigest(report.RunID, report.Root))
	if err != nil {
		return errors.Wrap(err, "failed to sign report")
	}
	report.Signature = sig
	return nil
}

// VerifyReport recomputes the step root and checks the signature against the
// report's signer address.
func VerifyReport(report *types.RunReport) error {
	if len(report.Steps) == 0 {
		return ErrReportNothingToCheck
	}

	tree, err := merkle.BuildStepTree(report.Steps)
	if err != nil {
		return errors.Wrap(err, "failed to build step tree")
	}
	if !bytes.Equal(tree.Root[:], report.Root) {
		return errors.Wrapf(ErrReportRootMismatch, "run %s", report.RunID)
	}
	if !identity.Verify(report.Signer, ReportDigest(report.RunID, report.Root), report.Signature) {
		return errors.Wrapf(ErrReportBadSignature, "run %s signed by %s", report.RunID, report.Signer)
	}
	return nil
}

// ProveStep returns the inclusion proof of one step in the report root.
func ProveStep(report *types.RunReport, index int) (*merkle.Proof, error) {
	tree, err := merkle.BuildStepTree(report.Steps)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build step tree")
	}
	return tree.GenerateProof(index)
}

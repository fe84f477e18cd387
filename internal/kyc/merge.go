package kyc

import "sak/pkg/domain"

// MergeData returns a new document holding existing overlaid by incoming.
// The merge is shallow: incoming keys overwrite, nested values are replaced whole.
func MergeData(existing, incoming domain.KYCData) domain.KYCData {
	out := make(domain.KYCData, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

package matching

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"carejoa-matching/internal/models"
)

// Fingerprint hashes the query signature. Equal signatures always produce
// equal fingerprints since the signature sets are sorted on normalization.
// Every field is length-prefixed, so values containing separators cannot
// collide with a different split of the same bytes.
func Fingerprint(sig models.QuerySignature) string {
	d := xxhash.New()
	writeField(d, string(sig.FacilityType))
	writeField(d, sig.Sido)
	writeField(d, sig.Sigungu)
	writeField(d, strconv.Itoa(sig.CareGrade))
	writeSet(d, sig.Specialties)
	writeSet(d, sig.AdmissionTypes)
	writeField(d, strconv.FormatBool(sig.HasBudget))
	return fmt.Sprintf("%016x", d.Sum64())
}

func writeField(d *xxhash.Digest, s string) {
	_, _ = d.WriteString(strconv.Itoa(len(s)))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(s)
}

func writeSet(d *xxhash.Digest, items []string) {
	writeField(d, strconv.Itoa(len(items)))
	for _, item := range items {
		writeField(d, item)
	}
}

package compare

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/yurifrl/budgetu/pkg/models"
)

// Key identifies a transaction by the four fields that are stable across
// statement exports: date, amount at two-decimal precision, description
// (whitespace-collapsed and case-folded) and type. Two transactions with the
// same Key are the same transaction.
func Key(tx models.ImportedTransaction) string {
	return fmt.Sprintf("%s|%.2f|%s|%s", tx.Date, tx.Amount, foldDescription(tx.Description), tx.Type)
}

// ID returns a short content hash of Key, used as an import identifier for
// sinks that need an idempotency token.
func ID(tx models.ImportedTransaction) string {
	hash := sha256.Sum256([]byte(Key(tx)))
	return fmt.Sprintf("%x", hash)[:16]
}

func foldDescription(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

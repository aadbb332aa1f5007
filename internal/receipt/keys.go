package receipt

import (
	"fmt"
	"strings"
)

// Every key in the store is "<partition>|<sort>". entitySchema is the single
// place key layouts live; record helpers build keys only through a schema,
// never by hand.
type entitySchema struct {
	entityType string
	partition  string // fmt template for the partition half
	sort       string // fmt template for the sort half
}

const keySeparator = "|"

var (
	itemSchema        = entitySchema{entityReceiptItem, "RECEIPT#%s", "ITEM#%s"}
	memberSchema      = entitySchema{entityReceiptMember, "RECEIPT#%s", "USER#%s"}
	userReceiptSchema = entitySchema{entityUserReceipt, "USER#%s", "RECEIPT#%s"}
	shareSchema       = entitySchema{entityReceiptShare, "SHARE#%s", "RECEIPT#%s"}
	shareIndexSchema  = entitySchema{entityReceiptShare, "RECEIPT#%s", "SHARE#%s"}
	geometrySchema    = entitySchema{entityReceiptGeometry, "RECEIPT#%s", "GEOMETRY#%s#%s"}
)

// Key composes the full key for one record.
func (s entitySchema) Key(partitionArg string, sortArgs ...any) []byte {
	return []byte(fmt.Sprintf(s.partition, partitionArg) + keySeparator + fmt.Sprintf(s.sort, sortArgs...))
}

// Prefix composes the scan prefix covering every record under one partition:
// the partition half plus the constant lead of the sort template.
func (s entitySchema) Prefix(partitionArg string) []byte {
	sortLead, _, _ := strings.Cut(s.sort, "%")
	return []byte(fmt.Sprintf(s.partition, partitionArg) + keySeparator + sortLead)
}

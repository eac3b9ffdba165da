package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Counter is the last issued suffix of one (prefix, bucket) namespace.
type Counter struct {
	Prefix    string    `gorm:"primaryKey;size:16" json:"prefix"`
	Bucket    string    `gorm:"primaryKey;size:8" json:"bucket"`
	LastValue int64     `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Counter) TableName() string { return "sequence_counters" }

const (
	PrefixHousehold   = "HH"
	PrefixBill        = "BILL"
	PrefixReceipt     = "RCP"
	PrefixTransaction = "TXN"
)

const suffixWidth = 4

// Namespace scopes a counter to an entity prefix and a time bucket.
type Namespace struct {
	Prefix string
	Bucket string
}

func (n Namespace) String() string {
	return n.Prefix + "-" + n.Bucket
}

// Validate checks the prefix is upper-case letters and the bucket a YYYY,
// YYYYMM or YYYYMMDD key.
func (n Namespace) Validate() error {
	if n.Prefix == "" || strings.IndexFunc(n.Prefix, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
		return ErrInvalidNamespace
	}
	switch len(n.Bucket) {
	case 4, 6, 8:
	default:
		return ErrInvalidNamespace
	}
	if !isDigits(n.Bucket) {
		return ErrInvalidNamespace
	}
	return nil
}

func YearBucket(t time.Time) string  { return t.UTC().Format("2006") }
func MonthBucket(t time.Time) string { return t.UTC().Format("200601") }
func DayBucket(t time.Time) string   { return t.UTC().Format("20060102") }

func HouseholdNamespace(t time.Time) Namespace {
	return Namespace{Prefix: PrefixHousehold, Bucket: YearBucket(t)}
}

func BillNamespace(t time.Time) Namespace {
	return Namespace{Prefix: PrefixBill, Bucket: MonthBucket(t)}
}

func ReceiptNamespace(t time.Time) Namespace {
	return Namespace{Prefix: PrefixReceipt, Bucket: MonthBucket(t)}
}

func TransactionNamespace(t time.Time) Namespace {
	return Namespace{Prefix: PrefixTransaction, Bucket: DayBucket(t)}
}

// Format renders PREFIX-BUCKET-NNNN. Suffixes past 9999 keep growing in width.
func Format(ns Namespace, value int64) string {
	return fmt.Sprintf("%s-%s-%0*d", ns.Prefix, ns.Bucket, suffixWidth, value)
}

// Parse splits an identifier produced by Format.
func Parse(identifier string) (Namespace, int64, error) {
	parts := strings.Split(strings.TrimSpace(identifier), "-")
	if len(parts) != 3 {
		return Namespace{}, 0, ErrInvalidIdentifier
	}
	ns := Namespace{Prefix: parts[0], Bucket: parts[1]}
	if err := ns.Validate(); err != nil {
		return Namespace{}, 0, ErrInvalidIdentifier
	}
	if len(parts[2]) < suffixWidth || !isDigits(parts[2]) {
		return Namespace{}, 0, ErrInvalidIdentifier
	}
	value, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || value <= 0 {
		return Namespace{}, 0, ErrInvalidIdentifier
	}
	return ns, value, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

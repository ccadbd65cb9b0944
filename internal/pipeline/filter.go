package pipeline

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// NotDeleted returns a copy of filter extended with the soft-delete
// exclusion. Every read and list path applies it unless explicitly fetching
// deleted records for audit.
func NotDeleted(filter bson.M) bson.M {
	out := bson.M{"deleted": bson.M{"$ne": true}}
	for k, v := range filter {
		out[k] = v
	}
	return out
}

// Touch stamps the modification timestamp on a $set document. Every
// successful mutation carries it.
func Touch(set bson.M, now time.Time) bson.M {
	set["modified_at"] = now
	return set
}

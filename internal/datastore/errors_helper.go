package datastore

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tattler-mx/tattler-go/internal/errors"
)

// wrapMongoError translates driver errors into categorized errors. Duplicate
// key violations surface as conflicts so strict-create paths can map them
// to 409; everything else is a database error.
func wrapMongoError(err error, operation string) error {
	if err == nil {
		return nil
	}

	category := errors.CategoryDatabase
	if mongo.IsDuplicateKeyError(err) {
		category = errors.CategoryConflict
	}

	return errors.New(err).
		Category(category).
		Component("datastore").
		Context("operation", operation).
		Build()
}

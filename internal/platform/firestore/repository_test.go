package firestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string `firestore:"name"`
}

func TestDecodeMissingSnapshot(t *testing.T) {
	_, err := Decode[widget](nil)
	require.Error(t, err)

	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.True(t, classified.IsNotFound())
}

func TestCollectionRejectsBadInput(t *testing.T) {
	unconfigured := NewCollection[widget](nil, "  ")
	_, err := unconfigured.Ref(context.Background())
	assert.ErrorContains(t, err, "collection is not configured")
	assert.ErrorContains(t, err, "firestore.ref")

	c := NewCollection[widget](nil, "widgets")
	_, err = c.Doc(context.Background(), " ")
	assert.ErrorContains(t, err, "widgets.doc: document id is required")

	err = c.Delete(context.Background(), "")
	assert.ErrorContains(t, err, "document id is required")
}

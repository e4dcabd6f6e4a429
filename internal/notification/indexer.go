package notification

import (
	"context"

	ingestdomain "mailsift-backend/internal/ingest/domain"
	"mailsift-backend/pkg/chroma"
)

// ChromaIndexer mirrors stored messages into the vector index
type ChromaIndexer struct {
	chromaClient *chroma.ChromaClient
}

func NewChromaIndexer(chromaClient *chroma.ChromaClient) *ChromaIndexer {
	return &ChromaIndexer{chromaClient: chromaClient}
}

func (i *ChromaIndexer) IndexMessage(ctx context.Context, userID string, message *ingestdomain.ScoredMessage) error {
	return i.chromaClient.UpsertMessageEmbedding(ctx, userID, message.MessageID, message.Subject, message.Snippet)
}

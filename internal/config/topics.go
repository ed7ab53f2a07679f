package config

const (
	// TopicIngestAsset carries asynchronous asset processing requests.
	TopicIngestAsset = "ingest.asset"

	// ChannelIngestWorker is the consumer channel of the ingestion worker.
	ChannelIngestWorker = "ingest-worker"
)

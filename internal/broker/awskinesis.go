package broker

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// kinesisAPI is the narrow slice of the Kinesis SDK the proxy actually
// calls, trimmed from the full client surface so tests can provide a fake
// without implementing stream-administration methods the proxy never
// issues.
type kinesisAPI interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
}

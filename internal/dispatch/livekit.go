package dispatch

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKitRooms provisions rooms and audio egress through the LiveKit server
// APIs. Rooms are named after call ids; the webhook ingestor relies on that
// to attribute events.
type LiveKitRooms struct {
	rooms  *lksdk.RoomServiceClient
	egress *lksdk.EgressClient

	// Recording target. Empty bucket disables recording entirely.
	bucket string
	region string

	// Rooms idle out if the agent never makes it in.
	emptyTimeoutSeconds uint32
}

func NewLiveKitRooms(url, apiKey, apiSecret, s3Bucket, s3Region string) *LiveKitRooms {
	return &LiveKitRooms{
		rooms:               lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		egress:              lksdk.NewEgressClient(url, apiKey, apiSecret),
		bucket:              s3Bucket,
		region:              s3Region,
		emptyTimeoutSeconds: 120,
	}
}

func (l *LiveKitRooms) EnsureRoom(ctx context.Context, name string) error {
	// CreateRoom is idempotent on name; an existing room is returned as-is.
	_, err := l.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:         name,
		EmptyTimeout: l.emptyTimeoutSeconds,
	})
	if err != nil {
		return fmt.Errorf("create room %s: %w", name, err)
	}
	return nil
}

func (l *LiveKitRooms) StartRecording(ctx context.Context, roomName string) (string, error) {
	if l.bucket == "" {
		return "", nil
	}
	info, err := l.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName:  roomName,
		AudioOnly: true,
		FileOutputs: []*livekit.EncodedFileOutput{{
			FileType: livekit.EncodedFileType_OGG,
			Filepath: fmt.Sprintf("%s/audio.ogg", roomName),
			Output: &livekit.EncodedFileOutput_S3{
				S3: &livekit.S3Upload{
					Bucket: l.bucket,
					Region: l.region,
				},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("start egress for %s: %w", roomName, err)
	}
	return info.GetEgressId(), nil
}

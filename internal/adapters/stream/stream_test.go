package stream_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/okian/vitalstream/internal/adapters/stream"
	"github.com/okian/vitalstream/internal/domain/model"
	"github.com/okian/vitalstream/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type record struct {
	stream, key string
	payload     []byte
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []record
	err     error
}

func (f *fakeRecorder) PutRecord(_ context.Context, streamName, partitionKey string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record{stream: streamName, key: partitionKey, payload: payload})
	return nil
}

func sample() model.VitalsSample {
	return model.VitalsSample{
		SubjectID:          "P001",
		SubjectName:        "Jane Doe",
		HeartRate:          72,
		BloodPressure:      "120/80",
		TemperatureCelsius: 36.6,
		OxygenSaturation:   97.5,
		Timestamp:          "2025-01-02T03:04:05.000000Z",
	}
}

func TestPublisher_Publish(t *testing.T) {
	Convey("Given a publisher over a recording transport", t, func() {
		rec := &fakeRecorder{}
		pub := stream.NewPublisher(rec, stream.WithStreamName("vitals-test"))
		ctx := context.Background()

		Convey("When a sample is published", func() {
			ok, err := pub.Publish(ctx, sample())

			Convey("Then it should be accepted and keyed by subject id", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(len(rec.records), ShouldEqual, 1)
				So(rec.records[0].stream, ShouldEqual, "vitals-test")
				So(rec.records[0].key, ShouldEqual, "P001")
			})

			Convey("And the payload should be the compact JSON wire form", func() {
				var decoded model.VitalsSample
				So(json.Unmarshal(rec.records[0].payload, &decoded), ShouldBeNil)
				So(decoded, ShouldResemble, sample())
				var compact bytes.Buffer
				So(json.Compact(&compact, rec.records[0].payload), ShouldBeNil)
				So(string(rec.records[0].payload), ShouldEqual, compact.String())
				So(string(rec.records[0].payload), ShouldContainSubstring, `"patient_name":"Jane Doe"`)
			})
		})

		Convey("When the transport fails", func() {
			rec.err = errors.New("throttled")
			ok, err := pub.Publish(ctx, sample())

			Convey("Then failure should be reported without retry", func() {
				So(ok, ShouldBeFalse)
				So(errors.Is(err, stream.ErrPublish), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "throttled")
				So(len(rec.records), ShouldEqual, 0)
			})
		})

		Convey("When partitioning by another field", func() {
			byName := stream.NewPublisher(rec, stream.WithPartitionKeyField("patient_name"))
			_, err := byName.Publish(ctx, sample())

			Convey("Then that field should be the key", func() {
				So(err, ShouldBeNil)
				So(rec.records[0].key, ShouldEqual, "Jane Doe")
				So(rec.records[0].stream, ShouldEqual, stream.DefaultStreamName)
			})
		})

		Convey("When the partition key field is unknown or empty", func() {
			bad := stream.NewPublisher(rec, stream.WithPartitionKeyField("ward"))
			ok, err := bad.Publish(ctx, sample())
			So(ok, ShouldBeFalse)
			So(errors.Is(err, stream.ErrPartitionKey), ShouldBeTrue)

			empty := sample()
			empty.SubjectID = ""
			ok, err = pub.Publish(ctx, empty)
			So(ok, ShouldBeFalse)
			So(errors.Is(err, stream.ErrPartitionKey), ShouldBeTrue)
			So(len(rec.records), ShouldEqual, 0)
		})
	})
}

type fakeKinesis struct {
	input *kinesis.PutRecordInput
	err   error
	delay time.Duration
}

func (f *fakeKinesis) PutRecord(ctx context.Context, in *kinesis.PutRecordInput, _ ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &kinesis.PutRecordOutput{SequenceNumber: aws.String("1"), ShardId: aws.String("shardId-000000000000")}, nil
}

func TestKinesisRecorder(t *testing.T) {
	Convey("Given a kinesis recorder", t, func() {
		api := &fakeKinesis{}
		rec := stream.NewKinesisRecorder(api, time.Second)
		ctx := context.Background()

		Convey("When a record is put", func() {
			err := rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{"a":1}`))

			Convey("Then the request should carry stream, key and data", func() {
				So(err, ShouldBeNil)
				So(aws.ToString(api.input.StreamName), ShouldEqual, "patient-vitals")
				So(aws.ToString(api.input.PartitionKey), ShouldEqual, "P001")
				So(string(api.input.Data), ShouldEqual, `{"a":1}`)
			})
		})

		Convey("When the service errors", func() {
			api.err = errors.New("ResourceNotFoundException")

			Convey("Then the error should be wrapped", func() {
				err := rec.PutRecord(ctx, "missing", "P001", []byte(`{}`))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "ResourceNotFoundException")
			})
		})

		Convey("When the call exceeds the timeout", func() {
			api.delay = time.Second
			slow := stream.NewKinesisRecorder(api, 20*time.Millisecond)

			Convey("Then it should fail with a deadline error", func() {
				err := slow.PutRecord(ctx, "patient-vitals", "P001", []byte(`{}`))
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestRedisStreamRecorder(t *testing.T) {
	Convey("Given a redis stream recorder", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		rec := stream.NewRedisStreamRecorder(client, 0)
		ctx := context.Background()

		Convey("When records are put", func() {
			So(rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{"heart_rate":70}`)), ShouldBeNil)
			So(rec.PutRecord(ctx, "patient-vitals", "P002", []byte(`{"heart_rate":80}`)), ShouldBeNil)

			Convey("Then the stream should hold them in order", func() {
				msgs, err := client.XRange(ctx, "patient-vitals", "-", "+").Result()
				So(err, ShouldBeNil)
				So(len(msgs), ShouldEqual, 2)
				So(msgs[0].Values[stream.RedisFieldPartitionKey], ShouldEqual, "P001")
				So(msgs[0].Values[stream.RedisFieldData], ShouldEqual, `{"heart_rate":70}`)
				So(msgs[1].Values[stream.RedisFieldPartitionKey], ShouldEqual, "P002")
			})
		})

		Convey("When redis is down", func() {
			mr.Close()

			Convey("Then put should fail", func() {
				So(rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{}`)), ShouldNotBeNil)
			})
		})
	})
}

func TestHTTPRecorder(t *testing.T) {
	Convey("Given an ingestion gateway", t, func() {
		var (
			gotPath string
			gotBody map[string]json.RawMessage
			status  = http.StatusAccepted
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			w.WriteHeader(status)
		}))
		defer srv.Close()
		rec := stream.NewHTTPRecorder(srv.URL, time.Second)
		ctx := context.Background()

		Convey("When a record is put", func() {
			err := rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{"heart_rate":70}`))

			Convey("Then it should post to the stream records path", func() {
				So(err, ShouldBeNil)
				So(gotPath, ShouldEqual, "/streams/patient-vitals/records")
				So(string(gotBody["partition_key"]), ShouldEqual, `"P001"`)
				So(string(gotBody["data"]), ShouldEqual, `{"heart_rate":70}`)
			})
		})

		Convey("When the gateway rejects the record", func() {
			status = http.StatusServiceUnavailable
			err := rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{}`))

			Convey("Then the status should be reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "503")
			})
		})
	})
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMQTT struct {
	connected bool
	topic     string
	qos       byte
	payload   []byte
	token     mqtt.Token
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }
func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.topic, f.qos = topic, qos
	f.payload, _ = payload.([]byte)
	return f.token
}

func TestMQTTRecorder(t *testing.T) {
	Convey("Given an mqtt recorder", t, func() {
		client := &fakeMQTT{connected: true, token: newToken(nil, true)}
		rec := stream.NewMQTTRecorder(client, 1, 50*time.Millisecond)
		ctx := context.Background()

		Convey("When a record is put", func() {
			err := rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{}`))

			Convey("Then it should publish on the per-subject topic", func() {
				So(err, ShouldBeNil)
				So(client.topic, ShouldEqual, "patient-vitals/P001")
				So(client.qos, ShouldEqual, byte(1))
				So(string(client.payload), ShouldEqual, `{}`)
			})
		})

		Convey("When the broker rejects the publish", func() {
			client.token = newToken(errors.New("not authorized"), true)
			So(rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{}`)), ShouldNotBeNil)
		})

		Convey("When the broker never acknowledges", func() {
			client.token = newToken(nil, false)
			err := rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{}`))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "timeout")
		})

		Convey("When the client is disconnected", func() {
			client.connected = false
			So(errors.Is(rec.PutRecord(ctx, "patient-vitals", "P001", []byte(`{}`)), stream.ErrNotConnected), ShouldBeTrue)
		})
	})
}

func TestLogRecorder(t *testing.T) {
	Convey("Given a dry-run recorder", t, func() {
		var buf bytes.Buffer
		rec := stream.NewLogRecorder(logger.New(&buf))

		Convey("Then every record should be logged and accepted", func() {
			So(rec.PutRecord(context.Background(), "patient-vitals", "P009", []byte(`{"x":1}`)), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "partition_key=P009")
			So(buf.String(), ShouldContainSubstring, "dry run record")
		})
	})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fixit/internal/domain"
	"fixit/internal/events"
	"fixit/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	notificationServiceName = "fixit.notifications.v1.NotificationService"
	subscribeMethod         = "/" + notificationServiceName + "/Subscribe"
	getBookingMethod        = "/" + notificationServiceName + "/GetBooking"
	roomHeader              = "x-room"
)

// NotificationServer streams room events and serves booking lookups.
type NotificationServer interface {
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
	GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// BookingReader is the read side of the lifecycle manager.
type BookingReader interface {
	GetBooking(ctx context.Context, principal models.Principal, bookingID int64) (*models.BookingDetails, error)
}

var NotificationServiceDesc = grpc.ServiceDesc{
	ServiceName: notificationServiceName,
	HandlerType: (*NotificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBooking", Handler: getBookingHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "fixit/notifications/v1/notifications.proto",
}

func getBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationServer).GetBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBookingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NotificationServer).GetBooking(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NotificationServer).Subscribe(in, stream)
}

type NotificationService struct {
	router   *events.Router
	bookings BookingReader
}

func NewNotificationService(router *events.Router, bookings BookingReader) *NotificationService {
	return &NotificationService{router: router, bookings: bookings}
}

// Subscribe joins the requested room and forwards its events until the client
// goes away. The x-room header is sent once the subscription is live.
func (s *NotificationService) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	room := strings.TrimSpace(req.GetFields()["room"].GetStringValue())
	if room == "" {
		return status.Error(codes.InvalidArgument, "room is required")
	}

	sub := s.router.Subscribe(room)
	defer sub.Close()

	if err := stream.SendHeader(metadata.Pairs(roomHeader, room)); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			msg, err := eventStruct(evt)
			if err != nil {
				return status.Error(codes.Internal, "encode event")
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *NotificationService) GetBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal, err := principalFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	id := int64(req.GetFields()["booking_id"].GetNumberValue())
	if id <= 0 {
		return nil, status.Error(codes.InvalidArgument, "booking_id is required")
	}

	details, err := s.bookings.GetBooking(ctx, principal, id)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := toStruct(details)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode booking")
	}
	return out, nil
}

func eventStruct(evt events.Event) (*structpb.Struct, error) {
	var payload any
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return nil, err
		}
	}
	return structpb.NewStruct(map[string]any{
		"room":       evt.Room,
		"event":      evt.Type,
		"payload":    payload,
		"created_at": evt.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func grpcError(err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return status.Error(codes.Internal, "internal error")
	}
	switch derr.Kind {
	case domain.KindNotFound:
		return status.Error(codes.NotFound, derr.Message)
	case domain.KindUnauthorized:
		return status.Error(codes.PermissionDenied, derr.Message)
	case domain.KindInvalidState:
		return status.Error(codes.FailedPrecondition, derr.Message)
	case domain.KindConflict:
		return status.Error(codes.Aborted, derr.Message)
	case domain.KindValidation, domain.KindNoServiceAvailable:
		return status.Error(codes.InvalidArgument, derr.Message)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

package engine

import (
	"fmt"

	"github.com/signalsfoundry/commodity-pathsim/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service exposed by the engine.
const ServiceName = "pathsim.engine.v1.Engine"

const (
	methodConnect    = "Connect"
	methodEval       = "Eval"
	methodPutMatrix  = "PutMatrix"
	methodGetMatrix  = "GetMatrix"
	methodDisconnect = "Disconnect"
	methodExit       = "Exit"
	methodIsAlive    = "IsAlive"
)

// Request/response field names.
const (
	fieldSessionID = "session_id"
	fieldReuse     = "reuse_previous_session"
	fieldHidden    = "hidden"
	fieldStartDir  = "start_dir"
	fieldCommand   = "command"
	fieldName      = "name"
	fieldMatrix    = "matrix"
)

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func connectRequest(opts ConnectOptions) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldReuse:    structpb.NewBoolValue(opts.ReusePreviousSession),
		fieldHidden:   structpb.NewBoolValue(opts.Hidden),
		fieldStartDir: structpb.NewStringValue(opts.StartDir),
	}}
}

func connectOptionsFrom(req *structpb.Struct) ConnectOptions {
	f := req.GetFields()
	return ConnectOptions{
		ReusePreviousSession: f[fieldReuse].GetBoolValue(),
		Hidden:               f[fieldHidden].GetBoolValue(),
		StartDir:             f[fieldStartDir].GetStringValue(),
	}
}

func sessionRequest(sessionID string, extra map[string]*structpb.Value) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldSessionID: structpb.NewStringValue(sessionID),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &structpb.Struct{Fields: fields}
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// matrixToValue encodes m as a list of row lists. A nil matrix becomes null.
func matrixToValue(m model.Matrix) *structpb.Value {
	if m == nil {
		return structpb.NewNullValue()
	}
	rows := make([]*structpb.Value, len(m))
	for i, row := range m {
		cells := make([]*structpb.Value, len(row))
		for j, v := range row {
			cells[j] = structpb.NewNumberValue(v)
		}
		rows[i] = structpb.NewListValue(&structpb.ListValue{Values: cells})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: rows})
}

// matrixFromValue is the inverse of matrixToValue. Rows keep their own
// lengths so that ragged engine output reaches the codec unchanged.
func matrixFromValue(v *structpb.Value) (model.Matrix, error) {
	if v == nil {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_ListValue:
		rows := kind.ListValue.GetValues()
		m := make(model.Matrix, len(rows))
		for i, row := range rows {
			list, ok := row.GetKind().(*structpb.Value_ListValue)
			if !ok {
				return nil, fmt.Errorf("matrix row %d is not a list", i)
			}
			cells := list.ListValue.GetValues()
			m[i] = make([]float64, len(cells))
			for j, cell := range cells {
				num, ok := cell.GetKind().(*structpb.Value_NumberValue)
				if !ok {
					return nil, fmt.Errorf("matrix cell (%d,%d) is not a number", i, j)
				}
				m[i][j] = num.NumberValue
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("matrix value has unexpected kind %T", kind)
	}
}

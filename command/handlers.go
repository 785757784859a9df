package command

import (
	"context"

	"github.com/mbocsi/ipcd/proto"
)

// Handler interfaces. A device handler implements any subset.

type DeviceInfoGetter interface {
	GetDeviceInfo(ctx context.Context) (proto.DeviceDetails, error)
}

type DeviceInfoSetter interface {
	SetDeviceInfo(ctx context.Context, values map[string]any) error
}

type ParameterGetter interface {
	// GetParameterValues returns the named parameters, or all of them when
	// names is empty.
	GetParameterValues(ctx context.Context, names []string) (map[string]any, error)
}

type ParameterSetter interface {
	SetParameterValues(ctx context.Context, values map[string]any) error
}

type ParameterInfoGetter interface {
	GetParameterInfo(ctx context.Context) (map[string]proto.ParameterInfo, error)
}

type ReportGetter interface {
	GetReport(ctx context.Context) (map[string]any, error)
}

type ReportConfigurer interface {
	SetReportConfiguration(ctx context.Context, cfg ReportConfiguration) error
}

type Downloader interface {
	Download(ctx context.Context, req DownloadRequest) error
}

type Rebooter interface {
	Reboot(ctx context.Context) error
}

type FactoryResetter interface {
	FactoryReset(ctx context.Context) error
}

type Leaver interface {
	Leave(ctx context.Context) error
}

package loader

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"

	"github.com/joeblew999/geoportal/internal/apperr"
)

const wgs84Proj = "+proj=longlat +datum=WGS84 +no_defs"

// webMercatorProj is the spherical mercator used by web maps.
const webMercatorProj = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"

// Reproject transforms coordinates from a projected EPSG code to WGS84.
type Reproject struct {
	EPSG  int
	trans proj.Transformer
}

// NewReproject builds a Reproject policy for epsg. Supported codes are
// 4326, 3857/900913 and the WGS84 UTM zones 32601-32660 / 32701-32760.
func NewReproject(epsg int) (*Reproject, error) {
	def, err := proj4ForEPSG(epsg)
	if err != nil {
		return nil, err
	}
	src, err := proj.Parse(def)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeometry, err, "parsing projection for EPSG:%d", epsg)
	}
	dst, err := proj.Parse(wgs84Proj)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeometry, err, "parsing WGS84 projection")
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeometry, err, "building transform from EPSG:%d", epsg)
	}
	return &Reproject{EPSG: epsg, trans: trans}, nil
}

func (r *Reproject) Name() string { return fmt.Sprintf("reproject(EPSG:%d)", r.EPSG) }

func (r *Reproject) Fix(p orb.Point) (orb.Point, error) {
	x, y, err := r.trans(p[0], p[1])
	if err != nil {
		return p, apperr.Wrap(apperr.KindGeometry, err, "reprojecting (%g, %g) from EPSG:%d", p[0], p[1], r.EPSG)
	}
	return orb.Point{x, y}, nil
}

func proj4ForEPSG(epsg int) (string, error) {
	switch {
	case epsg == 4326:
		return wgs84Proj, nil
	case epsg == 3857 || epsg == 900913 || epsg == 3785:
		return webMercatorProj, nil
	case epsg >= 32601 && epsg <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", epsg-32600), nil
	case epsg >= 32701 && epsg <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", epsg-32700), nil
	default:
		return "", apperr.Geometry("unsupported source CRS EPSG:%d", epsg)
	}
}

package steelsky

// LUT coordinate mappings. Texel centers of an N-wide table only cover
// [0.5/N, 1-0.5/N] of the parameter range, so the sky-view and
// multi-scattering mappings squeeze UVs through the sub-texel range before
// inverting; the two helpers below are exact inverses of each other.

func fromUnitToSubUVs(u, resolution float32) float32 {
	return (u*resolution + 0.5) / (resolution + 1.0)
}

func fromSubUVsToUnit(u, resolution float32) float32 {
	return (u*(resolution+1.0) - 0.5) / resolution
}

// transmittanceParamsToUV maps (viewHeight, viewZenithCos) to transmittance
// LUT coordinates. The distance-to-top parameterization concentrates
// resolution near the horizon where transmittance varies fastest.
func transmittanceParamsToUV(m *AtmosphereModel, viewHeight, viewZenithCos float32) (u, v float32) {
	h := sqrt32(m.TopRadius*m.TopRadius - m.BottomRadius*m.BottomRadius)
	rho := sqrt32(viewHeight*viewHeight - m.BottomRadius*m.BottomRadius)

	discriminant := viewHeight*viewHeight*(viewZenithCos*viewZenithCos-1.0) + m.TopRadius*m.TopRadius
	d := max32(0, -viewHeight*viewZenithCos+sqrt32(discriminant)) // distance to top boundary

	dMin := m.TopRadius - viewHeight
	dMax := rho + h
	u = Saturate((d - dMin) / (dMax - dMin))
	v = Saturate(rho / h)
	return u, v
}

// uvToTransmittanceParams inverts transmittanceParamsToUV.
func uvToTransmittanceParams(m *AtmosphereModel, u, v float32) (viewHeight, viewZenithCos float32) {
	h := sqrt32(m.TopRadius*m.TopRadius - m.BottomRadius*m.BottomRadius)
	rho := h * v
	viewHeight = sqrt32(rho*rho + m.BottomRadius*m.BottomRadius)

	dMin := m.TopRadius - viewHeight
	dMax := rho + h
	d := dMin + u*(dMax-dMin)
	switch {
	case d == 0:
		viewZenithCos = 1.0
	default:
		viewZenithCos = (h*h - rho*rho - d*d) / (2.0 * viewHeight * d)
	}
	viewZenithCos = Clamp(viewZenithCos, -1.0, 1.0)
	return viewHeight, viewZenithCos
}

// skyViewParamsToUV maps a view direction, expressed as horizon-relative
// angles, to sky-view LUT coordinates. The vertical axis splits at the true
// horizon and applies a sqrt warp on both sides so resolution piles up where
// the sky gradient is steepest.
func skyViewParamsToUV(m *AtmosphereModel, intersectsGround bool, viewZenithCos, lightViewCos, viewHeight float32, width, height int) (u, v float32) {
	vHorizon := sqrt32(viewHeight*viewHeight - m.BottomRadius*m.BottomRadius)
	cosBeta := vHorizon / viewHeight // ground-to-horizon angle cosine
	beta := acos32(cosBeta)
	zenithHorizonAngle := Pi - beta

	if !intersectsGround {
		coord := acos32(viewZenithCos) / zenithHorizonAngle
		coord = 1.0 - coord
		coord = sqrt32(coord)
		coord = 1.0 - coord
		v = coord * 0.5
	} else {
		coord := (acos32(viewZenithCos) - zenithHorizonAngle) / beta
		coord = sqrt32(coord)
		v = coord*0.5 + 0.5
	}

	coord := -lightViewCos*0.5 + 0.5
	coord = sqrt32(coord)
	u = coord

	u = fromUnitToSubUVs(u, float32(width))
	v = fromUnitToSubUVs(v, float32(height))
	return u, v
}

// uvToSkyViewParams inverts skyViewParamsToUV.
func uvToSkyViewParams(m *AtmosphereModel, viewHeight float32, u, v float32, width, height int) (viewZenithCos, lightViewCos float32) {
	u = fromSubUVsToUnit(u, float32(width))
	v = fromSubUVsToUnit(v, float32(height))

	vHorizon := sqrt32(viewHeight*viewHeight - m.BottomRadius*m.BottomRadius)
	cosBeta := vHorizon / viewHeight
	beta := acos32(cosBeta)
	zenithHorizonAngle := Pi - beta

	if v < 0.5 {
		coord := 2.0 * v
		coord = 1.0 - coord
		coord *= coord
		coord = 1.0 - coord
		viewZenithCos = cos32(zenithHorizonAngle * coord)
	} else {
		coord := v*2.0 - 1.0
		coord *= coord
		viewZenithCos = cos32(zenithHorizonAngle + beta*coord)
	}

	coord := u
	coord *= coord
	lightViewCos = -(coord*2.0 - 1.0)
	return viewZenithCos, lightViewCos
}

// multiScatterParamsToUV maps (viewHeight, sunZenithCos) onto the
// multi-scattering LUT, which is low resolution enough to need the sub-texel
// squeeze on both axes.
func multiScatterParamsToUV(m *AtmosphereModel, viewHeight, sunZenithCos float32, size int) (u, v float32) {
	u = Saturate(sunZenithCos*0.5 + 0.5)
	v = Saturate((viewHeight - m.BottomRadius) / (m.TopRadius - m.BottomRadius))
	u = fromUnitToSubUVs(u, float32(size))
	v = fromUnitToSubUVs(v, float32(size))
	return u, v
}

// uvToMultiScatterParams inverts multiScatterParamsToUV.
func uvToMultiScatterParams(m *AtmosphereModel, u, v float32, size int) (viewHeight, sunZenithCos float32) {
	u = fromSubUVsToUnit(u, float32(size))
	v = fromSubUVsToUnit(v, float32(size))
	sunZenithCos = Clamp(u*2.0-1.0, -1.0, 1.0)
	viewHeight = m.BottomRadius + Saturate(v)*(m.TopRadius-m.BottomRadius)
	return viewHeight, sunZenithCos
}

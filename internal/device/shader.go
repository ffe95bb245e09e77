package device

import (
	"fmt"
	"strings"
)

// workgroupSize is the number of invocations per workgroup. 256 fits the
// baseline WebGPU limits on every backend worth targeting.
const workgroupSize = 256

// coverageShader generates the pass-1 kernel. Each invocation owns one
// ground-set row: it computes the row's distance to the origin, scans the
// candidate set for the nearest exemplar, and emits the covered-distance
// term max(refDist - minDist, 0). Each workgroup then tree-reduces its 256
// terms in shared memory and writes a single partial sum.
//
// The candidate row count is recovered in-shader from arrayLength, so the
// pipeline compiles once per instance and serves any set size.
func coverageShader(s Scalar, n, dim int) string {
	if s == ScalarF64 {
		return coverageShaderDF64(n, dim)
	}

	ty := "f32"
	header := ""
	if s == ScalarF16 {
		ty = "f16"
		header = "enable f16;\n\n"
	}

	return fmt.Sprintf(`%s@group(0) @binding(0) var<storage, read> ground : array<%[2]s>;
@group(0) @binding(1) var<storage, read> cand : array<%[2]s>;
@group(0) @binding(2) var<storage, read_write> partials : array<%[2]s>;

const N: u32 = %[3]du;
const D: u32 = %[4]du;

var<workgroup> shared_sum: array<%[2]s, %[5]d>;

@compute @workgroup_size(%[5]d)
fn main(
	@builtin(workgroup_id) wg_id: vec3<u32>,
	@builtin(local_invocation_id) local_id: vec3<u32>
) {
	let row = wg_id.x * %[5]du + local_id.x;
	let tid = local_id.x;

	var term: %[2]s = 0.0;
	if (row < N) {
		let base = row * D;

		var ref2: %[2]s = 0.0;
		for (var j: u32 = 0u; j < D; j++) {
			let x = ground[base + j];
			ref2 = ref2 + x * x;
		}
		let refd = sqrt(ref2);

		// Seeding the minimum with the reference distance folds the
		// per-term clipping into the scan.
		var mind = refd;
		let k = arrayLength(&cand) / D;
		for (var i: u32 = 0u; i < k; i++) {
			let sbase = i * D;
			var d2: %[2]s = 0.0;
			for (var j: u32 = 0u; j < D; j++) {
				let diff = ground[base + j] - cand[sbase + j];
				d2 = d2 + diff * diff;
			}
			let dist = sqrt(d2);
			if (dist < mind) {
				mind = dist;
			}
		}
		term = refd - mind;
	}

	shared_sum[tid] = term;
	workgroupBarrier();

	for (var s: u32 = %[6]du; s > 0u; s = s >> 1u) {
		if (tid < s) {
			shared_sum[tid] = shared_sum[tid] + shared_sum[tid + s];
		}
		workgroupBarrier();
	}
	if (tid == 0u) {
		partials[wg_id.x] = shared_sum[0];
	}
}
`, header, ty, n, dim, workgroupSize, workgroupSize/2)
}

// sumShader generates the pass-2 kernel: a single workgroup strides over
// the partial sums and reduces them to result[0].
func sumShader(s Scalar) string {
	if s == ScalarF64 {
		return sumShaderDF64()
	}

	ty := "f32"
	header := ""
	if s == ScalarF16 {
		ty = "f16"
		header = "enable f16;\n\n"
	}

	return fmt.Sprintf(`%s@group(0) @binding(0) var<storage, read> partials : array<%[2]s>;
@group(0) @binding(1) var<storage, read_write> result : array<%[2]s>;

var<workgroup> shared_sum: array<%[2]s, %[3]d>;

@compute @workgroup_size(%[3]d)
fn main(@builtin(local_invocation_id) local_id: vec3<u32>) {
	let tid = local_id.x;
	let m = arrayLength(&partials);

	var acc: %[2]s = 0.0;
	for (var i: u32 = tid; i < m; i = i + %[3]du) {
		acc = acc + partials[i];
	}
	shared_sum[tid] = acc;
	workgroupBarrier();

	for (var s: u32 = %[4]du; s > 0u; s = s >> 1u) {
		if (tid < s) {
			shared_sum[tid] = shared_sum[tid] + shared_sum[tid + s];
		}
		workgroupBarrier();
	}
	if (tid == 0u) {
		result[0] = shared_sum[0];
	}
}
`, header, ty, workgroupSize, workgroupSize/2)
}

// dsPrelude is the double-single arithmetic used by the f64 shaders.
// Values are vec2<f32> carrying (hi, lo) with |lo| <= ulp(hi)/2. The
// error-free transforms are the classic Knuth twoSum and fma-based
// twoProd; sqrt uses one Newton correction on the f32 estimate.
const dsPrelude = `fn two_sum(a: f32, b: f32) -> vec2<f32> {
	let s = a + b;
	let bb = s - a;
	let err = (a - (s - bb)) + (b - bb);
	return vec2<f32>(s, err);
}

fn quick_two_sum(a: f32, b: f32) -> vec2<f32> {
	let s = a + b;
	return vec2<f32>(s, b - (s - a));
}

fn two_prod(a: f32, b: f32) -> vec2<f32> {
	let p = a * b;
	let err = fma(a, b, -p);
	return vec2<f32>(p, err);
}

fn ds_add(a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
	let s = two_sum(a.x, b.x);
	return quick_two_sum(s.x, s.y + a.y + b.y);
}

fn ds_sub(a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
	return ds_add(a, vec2<f32>(-b.x, -b.y));
}

fn ds_mul(a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
	let p = two_prod(a.x, b.x);
	return quick_two_sum(p.x, p.y + a.x * b.y + a.y * b.x);
}

fn ds_sqrt(a: vec2<f32>) -> vec2<f32> {
	if (a.x <= 0.0) {
		return vec2<f32>(0.0, 0.0);
	}
	let inv = 1.0 / sqrt(a.x);
	let y = a.x * inv;
	let y2 = ds_mul(vec2<f32>(y, 0.0), vec2<f32>(y, 0.0));
	let corr = (ds_sub(a, y2)).x * inv * 0.5;
	return quick_two_sum(y, corr);
}

fn ds_lt(a: vec2<f32>, b: vec2<f32>) -> bool {
	return a.x < b.x || (a.x == b.x && a.y < b.y);
}

`

func coverageShaderDF64(n, dim int) string {
	var b strings.Builder
	b.WriteString(dsPrelude)
	fmt.Fprintf(&b, `@group(0) @binding(0) var<storage, read> ground : array<vec2<f32>>;
@group(0) @binding(1) var<storage, read> cand : array<vec2<f32>>;
@group(0) @binding(2) var<storage, read_write> partials : array<vec2<f32>>;

const N: u32 = %du;
const D: u32 = %du;

var<workgroup> shared_sum: array<vec2<f32>, %[3]d>;

@compute @workgroup_size(%[3]d)
fn main(
	@builtin(workgroup_id) wg_id: vec3<u32>,
	@builtin(local_invocation_id) local_id: vec3<u32>
) {
	let row = wg_id.x * %[3]du + local_id.x;
	let tid = local_id.x;

	var term = vec2<f32>(0.0, 0.0);
	if (row < N) {
		let base = row * D;

		var ref2 = vec2<f32>(0.0, 0.0);
		for (var j: u32 = 0u; j < D; j++) {
			let x = ground[base + j];
			ref2 = ds_add(ref2, ds_mul(x, x));
		}
		let refd = ds_sqrt(ref2);

		var mind = refd;
		let k = arrayLength(&cand) / D;
		for (var i: u32 = 0u; i < k; i++) {
			let sbase = i * D;
			var d2 = vec2<f32>(0.0, 0.0);
			for (var j: u32 = 0u; j < D; j++) {
				let diff = ds_sub(ground[base + j], cand[sbase + j]);
				d2 = ds_add(d2, ds_mul(diff, diff));
			}
			let dist = ds_sqrt(d2);
			if (ds_lt(dist, mind)) {
				mind = dist;
			}
		}
		term = ds_sub(refd, mind);
	}

	shared_sum[tid] = term;
	workgroupBarrier();

	for (var s: u32 = %[4]du; s > 0u; s = s >> 1u) {
		if (tid < s) {
			shared_sum[tid] = ds_add(shared_sum[tid], shared_sum[tid + s]);
		}
		workgroupBarrier();
	}
	if (tid == 0u) {
		partials[wg_id.x] = shared_sum[0];
	}
}
`, n, dim, workgroupSize, workgroupSize/2)
	return b.String()
}

func sumShaderDF64() string {
	var b strings.Builder
	b.WriteString(dsPrelude)
	fmt.Fprintf(&b, `@group(0) @binding(0) var<storage, read> partials : array<vec2<f32>>;
@group(0) @binding(1) var<storage, read_write> result : array<vec2<f32>>;

var<workgroup> shared_sum: array<vec2<f32>, %[1]d>;

@compute @workgroup_size(%[1]d)
fn main(@builtin(local_invocation_id) local_id: vec3<u32>) {
	let tid = local_id.x;
	let m = arrayLength(&partials);

	var acc = vec2<f32>(0.0, 0.0);
	for (var i: u32 = tid; i < m; i = i + %[1]du) {
		acc = ds_add(acc, partials[i]);
	}
	shared_sum[tid] = acc;
	workgroupBarrier();

	for (var s: u32 = %[2]du; s > 0u; s = s >> 1u) {
		if (tid < s) {
			shared_sum[tid] = ds_add(shared_sum[tid], shared_sum[tid + s]);
		}
		workgroupBarrier();
	}
	if (tid == 0u) {
		result[0] = shared_sum[0];
	}
}
`, workgroupSize, workgroupSize/2)
	return b.String()
}

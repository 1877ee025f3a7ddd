package cdpcontrol

import "encoding/json"

// Every page program is an IIFE that resolves to a JSON string envelope:
// {ok, data, error_code, error_message}. Thrown errors are folded into the
// envelope by buildIIFE.

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }

// jsBinaryHelpers converts between live binary objects and the tagged
// {__type, data, type} records used on the wire.
const jsBinaryHelpers = `
function __svB64(bytes) {
  var s = "";
  for (var i = 0; i < bytes.length; i += 0x8000) {
    s += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
  }
  return btoa(s);
}
function __svBytes(b64) {
  var s = atob(b64);
  var out = new Uint8Array(s.length);
  for (var i = 0; i < s.length; i++) out[i] = s.charCodeAt(i);
  return out;
}
async function __svEncode(v) {
  if (v === null || v === undefined) return v === undefined ? null : v;
  if (typeof Blob !== "undefined" && v instanceof Blob) {
    return {__type:"Blob", data:__svB64(new Uint8Array(await v.arrayBuffer())), type:v.type || ""};
  }
  if (v instanceof ArrayBuffer) return {__type:"ArrayBuffer", data:__svB64(new Uint8Array(v))};
  if (ArrayBuffer.isView(v)) {
    return {__type:"Uint8Array", data:__svB64(new Uint8Array(v.buffer, v.byteOffset, v.byteLength))};
  }
  if (v instanceof Date) return v.toISOString();
  if (Array.isArray(v)) {
    var arr = [];
    for (var i = 0; i < v.length; i++) arr.push(await __svEncode(v[i]));
    return arr;
  }
  if (typeof v === "object") {
    var obj = {};
    var keys = Object.keys(v);
    for (var k = 0; k < keys.length; k++) obj[keys[k]] = await __svEncode(v[keys[k]]);
    return obj;
  }
  return v;
}
function __svDecode(v) {
  if (v === null || typeof v !== "object") return v;
  if (Array.isArray(v)) return v.map(__svDecode);
  if (typeof v.__type === "string" && typeof v.data === "string") {
    var data = v.data;
    var mime = v.type || "";
    if (data.indexOf("data:") === 0) {
      var comma = data.indexOf(",");
      if (!mime) mime = data.slice(5, comma).replace(";base64", "");
      data = data.slice(comma + 1);
    }
    var bytes = __svBytes(data);
    if (v.__type === "Blob") return new Blob([bytes], {type:mime});
    if (v.__type === "ArrayBuffer") return bytes.buffer;
    if (v.__type === "Uint8Array") return bytes;
  }
  var out = {};
  for (var key in v) {
    if (Object.prototype.hasOwnProperty.call(v, key)) out[key] = __svDecode(v[key]);
  }
  return out;
}
`

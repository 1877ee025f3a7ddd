package cdpcontrol

import (
	"encoding/json"
	"fmt"
)

func jsLocation() string {
	return wrapJSEval(`return JSON.stringify({ok:true,data:{url:String(location.href)}});`)
}

const jsDumpArea = `
function __svDump(area) {
  var out = {};
  if (!area) return out;
  for (var i = 0; i < area.length; i++) {
    var k = area.key(i);
    if (k !== null) out[k] = area.getItem(k);
  }
  return out;
}
`

func jsReadWebStorage() string {
	return wrapJSEval(jsDumpArea + `
return JSON.stringify({ok:true,data:{
  localStorage: __svDump(window.localStorage),
  sessionStorage: __svDump(window.sessionStorage)
}});`)
}

// jsWriteWebStorage clears both areas before writing. Per-key failures such
// as quota errors are counted, not thrown.
func jsWriteWebStorage(local, session map[string]string) string {
	if local == nil {
		local = map[string]string{}
	}
	if session == nil {
		session = map[string]string{}
	}
	return wrapJSEval(fmt.Sprintf(`
var local = %s;
var session = %s;
var written = 0, failed = 0;
function fill(area, items) {
  area.clear();
  Object.keys(items).forEach(function(k) {
    try { area.setItem(k, items[k]); written++; } catch (_) { failed++; }
  });
}
fill(window.localStorage, local);
fill(window.sessionStorage, session);
return JSON.stringify({ok:true,data:{written:written,failed:failed}});`, jsJSON(local), jsJSON(session)))
}

func jsClearWebStorage() string {
	return wrapJSEval(`
window.localStorage.clear();
window.sessionStorage.clear();
return JSON.stringify({ok:true,data:{status:"cleared"}});`)
}

func jsClearSiteData() string {
	return wrapJSEvalAsync(`
var workers = 0, caches_ = 0;
try {
  if (navigator.serviceWorker && navigator.serviceWorker.getRegistrations) {
    var regs = await navigator.serviceWorker.getRegistrations();
    for (var i = 0; i < regs.length; i++) {
      try { if (await regs[i].unregister()) workers++; } catch (_) {}
    }
  }
} catch (_) {}
try {
  if (window.caches && caches.keys) {
    var names = await caches.keys();
    for (var j = 0; j < names.length; j++) {
      try { if (await caches.delete(names[j])) caches_++; } catch (_) {}
    }
  }
} catch (_) {}
return JSON.stringify({ok:true,data:{workers:workers,caches:caches_}});`)
}

func jsDatabaseNames() string {
	return wrapJSEvalAsync(`
if (!window.indexedDB || typeof indexedDB.databases !== "function") {
  return JSON.stringify({ok:true,data:{names:[]}});
}
var dbs = await indexedDB.databases();
var names = [];
for (var i = 0; i < dbs.length; i++) {
  if (dbs[i] && dbs[i].name) names.push(dbs[i].name);
}
return JSON.stringify({ok:true,data:{names:names}});`)
}

// jsExportDatabase reads every store of one database in a single readonly
// transaction. Binary values are encoded after the transaction completes so
// no await happens while it is open. Opening a database that does not exist
// is aborted instead of creating it.
func jsExportDatabase(name string, skipStores []string, openTimeoutMS int64) string {
	if skipStores == nil {
		skipStores = []string{}
	}
	return wrapJSEvalAsync(jsBinaryHelpers + fmt.Sprintf(`
var name = %s;
var skip = %s;
var timeoutMs = %d;
var db = await new Promise(function(resolve, reject) {
  var timer = setTimeout(function() { reject(new Error("open timed out: " + name)); }, timeoutMs);
  var req = indexedDB.open(name);
  req.onupgradeneeded = function() { req.transaction.abort(); };
  req.onsuccess = function() { clearTimeout(timer); resolve(req.result); };
  req.onerror = function() { clearTimeout(timer); reject(req.error || new Error("open failed: " + name)); };
  req.onblocked = function() { clearTimeout(timer); reject(new Error("open blocked: " + name)); };
});
try {
  var storeNames = Array.prototype.slice.call(db.objectStoreNames).filter(function(sn) {
    return skip.indexOf(sn) < 0;
  });
  var raw = {};
  if (storeNames.length > 0) {
    raw = await new Promise(function(resolve, reject) {
      var tx = db.transaction(storeNames, "readonly");
      var collected = {};
      storeNames.forEach(function(sn) {
        var store = tx.objectStore(sn);
        var schema = {keyPath:store.keyPath, autoIncrement:store.autoIncrement, indexes:[]};
        Array.prototype.forEach.call(store.indexNames, function(ixName) {
          var ix = store.index(ixName);
          schema.indexes.push({name:ix.name, keyPath:ix.keyPath, unique:ix.unique, multiEntry:ix.multiEntry});
        });
        var entry = {schema:schema, keys:null, values:[]};
        collected[sn] = entry;
        store.getAll().onsuccess = function(e) { entry.values = e.target.result; };
        if (store.keyPath === null) {
          store.getAllKeys().onsuccess = function(e) { entry.keys = e.target.result; };
        }
      });
      tx.oncomplete = function() { resolve(collected); };
      tx.onerror = function() { reject(tx.error || new Error("transaction failed")); };
      tx.onabort = function() { reject(tx.error || new Error("transaction aborted")); };
    });
  }
  var stores = {};
  var names = Object.keys(raw);
  for (var i = 0; i < names.length; i++) {
    var e = raw[names[i]];
    stores[names[i]] = {
      schema: e.schema,
      keys: e.keys === null ? null : await __svEncode(e.keys),
      values: await __svEncode(e.values)
    };
  }
  return JSON.stringify({ok:true,data:{version:db.version,stores:stores}});
} finally {
  db.close();
}`, jsString(name), jsJSON(skipStores), openTimeoutMS))
}

// jsDeleteDatabase resolves on success, error and blocked alike and reports
// which one happened.
func jsDeleteDatabase(name string) string {
	return wrapJSEvalAsync(fmt.Sprintf(`
var name = %s;
var status = await new Promise(function(resolve) {
  var req = indexedDB.deleteDatabase(name);
  req.onsuccess = function() { resolve("deleted"); };
  req.onerror = function() { resolve("error"); };
  req.onblocked = function() { resolve("blocked"); };
});
return JSON.stringify({ok:true,data:{status:status}});`, jsString(name)))
}

// jsImportDatabase decodes every record first, then opens the database at
// the planned version (creating missing stores and indexes on upgrade) and
// writes everything inside one readwrite transaction. Failed puts are
// counted and their errors prevented from aborting the transaction.
func jsImportDatabase(plan json.RawMessage) string {
	return wrapJSEvalAsync(jsBinaryHelpers + fmt.Sprintf(`
var plan = %s;
var planStores = plan.stores || {};
var storeNames = Object.keys(planStores);
var decoded = {};
storeNames.forEach(function(sn) {
  decoded[sn] = (planStores[sn].records || []).map(function(r) {
    return {hasKey:!!r.has_key, key:r.has_key ? __svDecode(r.key) : undefined, value:__svDecode(r.value)};
  });
});
function hasKeyPath(kp) { return kp !== null && kp !== undefined; }
var db;
try {
  db = await new Promise(function(resolve, reject) {
    var req = plan.version > 0 ? indexedDB.open(plan.name, plan.version) : indexedDB.open(plan.name);
    req.onupgradeneeded = function() {
      var d = req.result;
      storeNames.forEach(function(sn) {
        var schema = planStores[sn].schema || {};
        var store;
        if (d.objectStoreNames.contains(sn)) {
          store = req.transaction.objectStore(sn);
        } else {
          var opts = {autoIncrement:!!schema.autoIncrement};
          if (hasKeyPath(schema.keyPath)) opts.keyPath = schema.keyPath;
          store = d.createObjectStore(sn, opts);
        }
        (schema.indexes || []).forEach(function(ix) {
          if (!store.indexNames.contains(ix.name)) {
            store.createIndex(ix.name, ix.keyPath, {unique:!!ix.unique, multiEntry:!!ix.multiEntry});
          }
        });
      });
    };
    req.onsuccess = function() { resolve(req.result); };
    req.onerror = function() { reject(req.error || new Error("open failed")); };
    req.onblocked = function() { reject(new Error("open blocked")); };
  });
} catch (err) {
  return JSON.stringify({ok:true,data:{outcome:"openError",puts:0,failed_puts:0,detail:String(err && err.message || err)}});
}
var present = storeNames.filter(function(sn) { return db.objectStoreNames.contains(sn); });
var missing = storeNames.length - present.length;
var result = await new Promise(function(resolve) {
  if (present.length === 0) {
    resolve({outcome:missing > 0 ? "storeError" : "ok", puts:0, failed_puts:0});
    return;
  }
  var puts = 0, failed = 0;
  var tx;
  try {
    tx = db.transaction(present, "readwrite");
  } catch (err) {
    resolve({outcome:"storeError", puts:0, failed_puts:0, detail:String(err && err.message || err)});
    return;
  }
  present.forEach(function(sn) {
    var store = tx.objectStore(sn);
    decoded[sn].forEach(function(r) {
      var req;
      try {
        req = (r.hasKey && store.keyPath === null) ? store.put(r.value, r.key) : store.put(r.value);
      } catch (_) {
        failed++;
        return;
      }
      req.onsuccess = function() { puts++; };
      req.onerror = function(e) { failed++; e.preventDefault(); e.stopPropagation(); };
    });
  });
  tx.oncomplete = function() {
    resolve({outcome:missing > 0 ? "storeError" : "ok", puts:puts, failed_puts:failed,
      detail:missing > 0 ? missing + " stores missing" : ""});
  };
  tx.onabort = function() {
    resolve({outcome:"storeError", puts:0, failed_puts:failed, detail:String(tx.error && tx.error.message || "transaction aborted")});
  };
});
db.close();
return JSON.stringify({ok:true,data:result});`, string(plan)))
}

package engine

// Engine export names. The strix.wasm artifact exports one function per
// name; resolution happens once at instantiation and every absent name is
// reported through errors.MissingExportsError.
const (
	expAlloc    = "strix_alloc"
	expFree     = "strix_free"
	expFreeCStr = "strix_free_cstr"

	expContextGroupNew     = "strix_context_group_new"
	expContextGroupRelease = "strix_context_group_release"
	expContextNew          = "strix_context_new"
	expContextRetain       = "strix_context_retain"
	expContextRelease      = "strix_context_release"
	expContextGroupOf      = "strix_context_group_of"
	expContextName         = "strix_context_name"
	expContextSetName      = "strix_context_set_name"
	expContextData         = "strix_context_data"
	expContextSetData      = "strix_context_set_data"
	expGlobalObject        = "strix_global_object"

	expEvaluateScript       = "strix_evaluate_script"
	expCheckSyntax          = "strix_check_syntax"
	expEvaluateModule       = "strix_evaluate_module"
	expEvaluateModuleSource = "strix_evaluate_module_source"
	expGC                   = "strix_gc"
	expMemoryUsage          = "strix_memory_usage"
	expPumpMessageLoop      = "strix_pump_message_loop"

	expUndefined = "strix_undefined"
	expNull      = "strix_null"
	expBoolean   = "strix_boolean"
	expNumber    = "strix_number"
	expString    = "strix_string"
	expSymbol    = "strix_symbol"
	expFromJSON  = "strix_from_json"
	expMakeError = "strix_make_error"

	expValueKind    = "strix_value_kind"
	expStrictEquals = "strix_strict_equals"
	expLooseEquals  = "strix_loose_equals"
	expInstanceOf   = "strix_instance_of"
	expToBoolean    = "strix_to_boolean"
	expToNumber     = "strix_to_number"
	expToString     = "strix_to_string"
	expToObject     = "strix_to_object"
	expToJSON       = "strix_to_json"
	expProtect      = "strix_value_protect"
	expUnprotect    = "strix_value_unprotect"

	expObjectMake       = "strix_object_make"
	expObjectGet        = "strix_object_get"
	expObjectSet        = "strix_object_set"
	expObjectHas        = "strix_object_has"
	expObjectDelete     = "strix_object_delete"
	expObjectGetKey     = "strix_object_get_key"
	expObjectSetKey     = "strix_object_set_key"
	expObjectHasKey     = "strix_object_has_key"
	expObjectDeleteKey  = "strix_object_delete_key"
	expObjectGetIndex   = "strix_object_get_index"
	expObjectSetIndex   = "strix_object_set_index"
	expPropertyNames    = "strix_object_property_names"
	expPrototype        = "strix_object_prototype"
	expSetPrototype     = "strix_object_set_prototype"
	expCall             = "strix_call"
	expConstruct        = "strix_construct"
	expPrivateToken     = "strix_private_token"
	expSetPrivateToken  = "strix_set_private_token"
	expClassRegister    = "strix_class_register"
	expClassRelease     = "strix_class_release"
	expFunctionMake     = "strix_function_make"
	expSetContextHooks  = "strix_set_context_hooks"
	expSetVirtualModKey = "strix_set_virtual_module_keys"

	expSetInspectable     = "strix_set_inspectable"
	expInspectorSend      = "strix_inspector_send"
	expInspectorDisc      = "strix_inspector_disconnect"
	expInspectorConnected = "strix_inspector_connected"
)

// requiredExports is checked in one pass so a bad artifact reports every
// gap at once rather than failing export by export.
var requiredExports = []string{
	expAlloc, expFree, expFreeCStr,

	expContextGroupNew, expContextGroupRelease,
	expContextNew, expContextRetain, expContextRelease, expContextGroupOf,
	expContextName, expContextSetName, expContextData, expContextSetData,
	expGlobalObject,

	expEvaluateScript, expCheckSyntax, expEvaluateModule,
	expEvaluateModuleSource, expGC, expMemoryUsage, expPumpMessageLoop,

	expUndefined, expNull, expBoolean, expNumber, expString, expSymbol,
	expFromJSON, expMakeError,

	expValueKind, expStrictEquals, expLooseEquals, expInstanceOf,
	expToBoolean, expToNumber, expToString, expToObject, expToJSON,
	expProtect, expUnprotect,

	expObjectMake, expObjectGet, expObjectSet, expObjectHas, expObjectDelete,
	expObjectGetKey, expObjectSetKey, expObjectHasKey, expObjectDeleteKey,
	expObjectGetIndex, expObjectSetIndex, expPropertyNames,
	expPrototype, expSetPrototype, expCall, expConstruct,
	expPrivateToken, expSetPrivateToken,
	expClassRegister, expClassRelease, expFunctionMake,
	expSetContextHooks, expSetVirtualModKey,

	expSetInspectable, expInspectorSend, expInspectorDisc, expInspectorConnected,
}

// HostModuleName is the import namespace the engine artifact binds its
// callback entry points under.
const HostModuleName = "strix_host"

// Host import names. Each call site inside the engine carries the callback
// ID captured at registration; the dispatcher resolves it against the hook
// table.
const (
	impCall               = "call"
	impConstruct          = "construct"
	impInitialize         = "initialize"
	impFinalize           = "finalize"
	impHasInstance        = "has_instance"
	impModuleResolve      = "module_resolve"
	impModuleFetch        = "module_fetch"
	impModuleEvaluate     = "module_evaluate"
	impImportMeta         = "import_meta"
	impUncaught           = "uncaught"
	impUnhandledRejection = "unhandled_rejection"
	impInspectorMessage   = "inspector_message"
	impPauseEvent         = "pause_event"
	impLog                = "log"
)

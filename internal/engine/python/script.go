package python

// bridgeScript runs either a JSON-lines extraction server ("serve") or a
// single training job ("train") read from stdin. Library output is redirected
// to stderr so stdout carries protocol messages only.
const bridgeScript = `
import inspect
import json
import sys

OUT = sys.stdout
sys.stdout = sys.stderr


def reply(obj):
    OUT.write(json.dumps(obj, default=_plain) + "\n")
    OUT.flush()


def _plain(value):
    if hasattr(value, "item"):
        return value.item()
    return str(value)


def shape_error(fn, kwargs):
    try:
        sig = inspect.signature(fn)
    except (TypeError, ValueError):
        return None
    try:
        sig.bind(**kwargs)
    except TypeError as exc:
        return str(exc)
    return None


def extract(model, req):
    kwargs = {
        "text": req.get("text", ""),
        "threshold": req.get("threshold", 0.5),
        "include_confidence": req.get("include_confidence", False),
        "include_spans": req.get("include_spans", False),
    }
    schema_call = req.get("convention") == "schema"
    if schema_call:
        kwargs["schema"] = req.get("schema") or {}
    else:
        kwargs["entity_types"] = req.get("entity_types") or []
    problem = shape_error(model.extract_entities, kwargs)
    if problem is not None:
        return {"error": problem, "error_kind": "call_shape"}
    try:
        return {"result": model.extract_entities(**kwargs)}
    except TypeError as exc:
        return {"error": str(exc), "error_kind": "call_shape" if schema_call else "engine"}
    except Exception as exc:
        return {"error": str(exc), "error_kind": "engine"}


def serve():
    model = None
    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        try:
            req = json.loads(line)
        except Exception as exc:
            reply({"error": "bad request: %s" % exc})
            continue
        op = req.get("op")
        if op == "load":
            try:
                from gliner2 import GLiNER2
                model = GLiNER2.from_pretrained(req["model"])
            except Exception as exc:
                reply({"error": str(exc), "error_kind": "load"})
                continue
            reply({"ok": True})
        elif op == "extract":
            if model is None:
                reply({"error": "model not loaded", "error_kind": "load"})
                continue
            reply(extract(model, req))
        else:
            reply({"error": "unknown op %r" % op})


def train():
    req = json.load(sys.stdin)
    try:
        from gliner2 import GLiNER2Trainer
        from gliner2.config import TrainingConfig

        config = TrainingConfig(
            num_epochs=req["num_epochs"],
            train_batch_size=req["batch_size"],
            learning_rate=req["learning_rate"],
            warmup_ratio=req["warmup_ratio"],
            max_length=req["max_length"],
            gradient_accumulation_steps=req["gradient_accumulation_steps"],
            eval_steps=req["eval_steps"],
            save_steps=req["save_steps"],
            output_dir=req["output_dir"],
            seed=req["seed"],
        )
        trainer = GLiNER2Trainer(model_name=req["base_model"], config=config)
        trainer.train(train_data=req["train_file"], val_data=req.get("val_file"))
        trainer.save_model(req["output_dir"])
    except Exception as exc:
        reply({"error": str(exc)})
        return
    reply({"ok": True})


mode = sys.argv[1] if len(sys.argv) > 1 else "serve"
if mode == "train":
    train()
else:
    serve()
`
